// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/danpilot/dialogos/pkg/ui"
)

// terminalSink implements pkg/ui.QuestionSink by printing the question
// to stdout and reading one line of answer from stdin. It is the
// demo harness's stand-in for the real UI boundary, which is left to
// an external collaborator in production.
type terminalSink struct {
	out io.Writer
	in  *bufio.Scanner
}

func newTerminalSink(out io.Writer, in io.Reader) *terminalSink {
	return &terminalSink{out: out, in: bufio.NewScanner(in)}
}

func (t *terminalSink) PresentQuestion(ctx context.Context, q ui.QuestionShell) (string, error) {
	fmt.Fprintf(t.out, "\n[%s] %s\n> ", q.Category, q.QuestionText)

	done := make(chan struct{})
	var line string
	var ok bool
	go func() {
		ok = t.in.Scan()
		line = t.in.Text()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return "", &ui.CancelledError{}
	case <-done:
		if !ok {
			return "", &ui.CancelledError{}
		}
		return line, nil
	}
}

// progressPrinter implements pkg/ui.ProgressSink by printing a one-line
// advisory status to stderr for each research stage.
type progressPrinter struct {
	out io.Writer
}

func (p *progressPrinter) ReportProgress(stageIndex int, stageName string, percent float64) {
	fmt.Fprintf(p.out, "research stage %d/6 (%s): %.0f%%\n", stageIndex, stageName, percent)
}
