// Copyright 2025 go-highway Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package matrix

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Color is an ANSI foreground color used by the Printer.
type Color string

const (
	ColorNone   Color = ""
	ColorRed    Color = "\x1b[0;31m"
	ColorGreen  Color = "\x1b[0;32m"
	ColorBlue   Color = "\x1b[0;34m"
	ColorPurple Color = "\x1b[0;35m"
	ColorCyan   Color = "\x1b[0;36m"

	colorReset = "\x1b[0m"
)

const (
	nameHeader = "Matrix "
	headerSep  = "."
)

// Printer formats matrices as tab-separated grids:
//
//	Matrix A
//	........
//	[	1	2	]
//	[	3	4	]
type Printer struct {
	w     io.Writer
	color bool
}

// NewPrinter returns a Printer writing to w. Colors are enabled only when w
// is a terminal.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, color: isTerminal(w)}
}

// WithColor forces colors on or off.
func (p *Printer) WithColor(enabled bool) *Printer {
	p.color = enabled
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func (p *Printer) paint(c Color, s string) string {
	if !p.color || c == ColorNone {
		return s
	}
	return string(c) + s + colorReset
}

// Print writes m under the given name.
func (p *Printer) Print(m *Matrix, name string, c Color) error {
	if err := m.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(p.w)
	title := nameHeader + name
	fmt.Fprintln(bw, p.paint(c, title))
	fmt.Fprintln(bw, p.paint(c, strings.Repeat(headerSep, len(title))))
	for i := range m.rows {
		var sb strings.Builder
		sb.WriteString("[\t")
		for _, v := range m.Row(i) {
			fmt.Fprintf(&sb, "%d\t", v)
		}
		sb.WriteString("]")
		fmt.Fprintln(bw, p.paint(c, sb.String()))
	}
	fmt.Fprintln(bw)
	return bw.Flush()
}

// Diagnostic writes a single red line, used for user-facing failures.
func (p *Printer) Diagnostic(format string, args ...any) error {
	_, err := fmt.Fprintln(p.w, p.paint(ColorRed, fmt.Sprintf(format, args...)))
	return err
}
