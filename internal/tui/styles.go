/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package tui

import "github.com/charmbracelet/lipgloss"

const (
	colorText      lipgloss.Color = "#cdd6f4"
	colorSubtle    lipgloss.Color = "#7f849c"
	colorHighlight lipgloss.Color = "#313244"
	colorAccent    lipgloss.Color = "#89b4fa"
	colorLeader    lipgloss.Color = "#f5c2e7"
	colorWarn      lipgloss.Color = "#f9e2af"
)

// styles used by the strip view. Selected rows get a background, the leader
// a bold caption, placeholders are dimmed.
var (
	styleRow         = lipgloss.NewStyle().Foreground(colorText)
	styleSelected    = lipgloss.NewStyle().Foreground(colorAccent).Background(colorHighlight)
	styleLeader      = lipgloss.NewStyle().Foreground(colorLeader).Background(colorHighlight).Bold(true)
	stylePlaceholder = lipgloss.NewStyle().Foreground(colorSubtle)
	styleCursor      = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	styleHeader      = lipgloss.NewStyle().Foreground(colorText).Bold(true).Underline(true)
	styleStatus      = lipgloss.NewStyle().Foreground(colorWarn)
	styleHelp        = lipgloss.NewStyle().Foreground(colorSubtle)
)
