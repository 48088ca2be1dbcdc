// Package main implements assign-task, which records one task assignment in
// the shared office document.
//
// The assignment is read from stdin as JSON:
//
//	{"clientId":"c1","clientName":"Acme","category":"ACCOUNTING","workItem":"1月",
//	 "year":"115","assigneeId":"u1","assigneeName":"Alice","actor":"Bob"}
//
// Exit codes:
//   - 0: Success (assignment saved)
//   - 1: Error (invalid input, validation failure, storage failure)
//
// Environment variables:
//   - OFFICEDESK_CONFIG: Optional. Config file (default ~/.config/officedesk/config.toml).
//   - OFFICEDESK_BACKEND, OFFICEDESK_DOCUMENT, OFFICEDESK_SQLITE_PATH,
//     OFFICEDESK_POSTGRES_DSN: Optional. Storage overrides.
//   - OFFICEDESK_ACTOR: Optional. Actor recorded when the input names none.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/JamesPrial/officedesk/internal/app"
	"github.com/JamesPrial/officedesk/internal/intake"
	"github.com/JamesPrial/officedesk/internal/logging"
)

// run contains the main logic, returning an exit code.
//
// Accepts an io.Reader for stdin to enable testing without modifying global state.
func run(stdin io.Reader) int {
	a, err := intake.ReadAssignment(stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error assigning task: %v\n", err)
		return 1
	}

	officedesk, err := app.New(app.Options{
		ConfigPath: os.Getenv("OFFICEDESK_CONFIG"),
		Sink:       logging.NewSinkTo(io.Discard),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error assigning task: %v\n", err)
		return 1
	}
	defer func() { _ = officedesk.Close() }()

	ctx := context.Background()
	if err := officedesk.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error assigning task: %v\n", err)
		return 1
	}

	task := intake.BuildTask(a)
	tasks, err := officedesk.Repos.Tasks.AddOrReplace(ctx, task, a.ActorOr(officedesk.Config.Actor))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error assigning task: %v\n", err)
		return 1
	}

	id := ""
	for _, t := range tasks {
		if (task.IsMisc && t.IsMisc && (task.ID == "" || t.ID == task.ID)) || (!task.IsMisc && !t.IsMisc && t.SameCell(task)) {
			id = t.ID
			break
		}
	}
	fmt.Printf("Saved assignment %s (%s storage)\n", id, officedesk.Backend().Kind())
	return 0
}

func main() {
	os.Exit(run(os.Stdin))
}
