// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the recon CLI.
package ux

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
)

// Palette. Deep ocean teals.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Key     lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Header  lipgloss.Style
	Cell    lipgloss.Style
	Border  lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Key:     lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Header:  lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright).Padding(0, 1),
	Cell:    lipgloss.NewStyle().Padding(0, 1),
	Border:  lipgloss.NewStyle().Foreground(ColorTealDeep),
}

// Icon provides themed status icons.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
)

// Mode selects how a Printer renders.
type Mode string

const (
	// ModeRich uses colours, icons and bordered tables.
	ModeRich Mode = "rich"

	// ModePlain writes tab separated text suitable for scripts.
	ModePlain Mode = "plain"

	// ModeJSON writes only JSON documents; status lines go to stderr.
	ModeJSON Mode = "json"
)

// DetectMode picks the output mode for stdout.
//
// Description:
//
//	jsonFlag wins. Otherwise rich output is used when stdout is a
//	terminal and NO_COLOR is unset, plain output otherwise.
func DetectMode(jsonFlag bool) Mode {
	if jsonFlag {
		return ModeJSON
	}
	if os.Getenv("NO_COLOR") != "" {
		return ModePlain
	}
	fd := os.Stdout.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return ModeRich
	}
	return ModePlain
}

// KV is a single labelled value.
type KV struct {
	Key   string
	Value string
}

// Printer writes CLI results in the selected Mode.
//
// Thread Safety: Not safe for concurrent use.
type Printer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
}

// NewPrinter creates a Printer. Nil writers default to stdout and stderr.
func NewPrinter(out, errOut io.Writer, mode Mode) *Printer {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	if mode == "" {
		mode = ModePlain
	}
	return &Printer{out: out, errOut: errOut, mode: mode}
}

// Mode returns the printer's mode.
func (p *Printer) Mode() Mode {
	return p.mode
}

// Title prints a heading. Skipped in JSON mode.
func (p *Printer) Title(text string) {
	switch p.mode {
	case ModeJSON:
	case ModeRich:
		fmt.Fprintln(p.out, Styles.Title.Render(text))
	default:
		fmt.Fprintln(p.out, text)
	}
}

// Success prints a success line.
func (p *Printer) Success(text string) {
	switch p.mode {
	case ModeJSON:
		fmt.Fprintf(p.errOut, "OK: %s\n", text)
	case ModeRich:
		fmt.Fprintf(p.out, "%s %s\n", Styles.Success.Render(string(IconSuccess)), text)
	default:
		fmt.Fprintf(p.out, "OK: %s\n", text)
	}
}

// Warning prints a warning line to stderr.
func (p *Printer) Warning(text string) {
	if p.mode == ModeRich {
		fmt.Fprintf(p.errOut, "%s %s\n", Styles.Warning.Render(string(IconWarning)), Styles.Warning.Render(text))
		return
	}
	fmt.Fprintf(p.errOut, "WARN: %s\n", text)
}

// Error prints an error line to stderr.
func (p *Printer) Error(text string) {
	if p.mode == ModeRich {
		fmt.Fprintf(p.errOut, "%s %s\n", Styles.Error.Render(string(IconError)), Styles.Error.Render(text))
		return
	}
	fmt.Fprintf(p.errOut, "ERROR: %s\n", text)
}

// KeyValues prints aligned key/value pairs. Skipped in JSON mode.
func (p *Printer) KeyValues(pairs []KV) {
	if p.mode == ModeJSON {
		return
	}
	width := 0
	for _, kv := range pairs {
		if len(kv.Key) > width {
			width = len(kv.Key)
		}
	}
	for _, kv := range pairs {
		switch p.mode {
		case ModeRich:
			key := Styles.Key.Render(fmt.Sprintf("%-*s", width, kv.Key))
			fmt.Fprintf(p.out, "  %s  %s\n", key, kv.Value)
		default:
			fmt.Fprintf(p.out, "%s\t%s\n", kv.Key, kv.Value)
		}
	}
}

// Table prints rows under headers. Skipped in JSON mode.
func (p *Printer) Table(headers []string, rows [][]string) {
	switch p.mode {
	case ModeJSON:
		return
	case ModeRich:
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(Styles.Border).
			Headers(headers...).
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return Styles.Header
				}
				return Styles.Cell
			})
		fmt.Fprintln(p.out, t.Render())
	default:
		fmt.Fprintln(p.out, strings.Join(headers, "\t"))
		for _, row := range rows {
			fmt.Fprintln(p.out, strings.Join(row, "\t"))
		}
	}
}

// JSON writes v as indented JSON. It writes in every mode so commands can
// call it unconditionally when the caller asked for JSON.
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// Result writes v as JSON in JSON mode, otherwise calls render.
func (p *Printer) Result(v any, render func()) error {
	if p.mode == ModeJSON {
		return p.JSON(v)
	}
	render()
	return nil
}
