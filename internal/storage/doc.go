/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage implements the document page sequence.
// It handles create/open/save for the JSON manifest (scanstrip.json) with schema validation, transactional writes and timestamped backups.
// It also manages the SQL page store (SQLite at <project>/.scanstrip/pages.sqlite by default, PostgreSQL optionally).
// The store is rebuilt from the manifest when it is empty.
// Rendered thumbnails are kept in a size-bounded SQLite cache under the same directory.
package storage
