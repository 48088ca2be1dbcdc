package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/JamesPrial/officedesk/internal/docstore"
	"github.com/JamesPrial/officedesk/internal/storage"
)

// ClientRepo manages the clients slice and the task cascade on delete.
type ClientRepo struct {
	gw *docstore.Gateway
}

// MergeResult counts what Merge did.
type MergeResult struct {
	Added   int
	Updated int
	Clients []storage.Client
}

// Fetch returns all clients.
func (r *ClientRepo) Fetch(ctx context.Context) ([]storage.Client, error) {
	doc, err := r.gw.Load(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Clients, nil
}

// Add appends c. A missing id is generated; an id already in use is
// rejected with ErrDuplicateClient.
func (r *ClientRepo) Add(ctx context.Context, c storage.Client) ([]storage.Client, error) {
	doc, err := r.gw.Update(ctx, func(doc *storage.Document) (*storage.Document, error) {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if clientIndex(doc.Clients, c.ID) >= 0 {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateClient, c.ID)
		}
		clients := make([]storage.Client, 0, len(doc.Clients)+1)
		clients = append(clients, doc.Clients...)
		clients = append(clients, c)
		return doc.WithClients(clients), nil
	})
	if err != nil {
		return nil, err
	}
	return doc.Clients, nil
}

// Update replaces the client with c.ID. When the name changes, the
// denormalized clientName of that client's tasks is rewritten in the same save.
func (r *ClientRepo) Update(ctx context.Context, c storage.Client) ([]storage.Client, error) {
	doc, err := r.gw.Update(ctx, func(doc *storage.Document) (*storage.Document, error) {
		idx := clientIndex(doc.Clients, c.ID)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrClientNotFound, c.ID)
		}
		prev := doc.Clients[idx]

		clients := make([]storage.Client, len(doc.Clients))
		copy(clients, doc.Clients)
		clients[idx] = c
		next := doc.WithClients(clients)

		if prev.Name != c.Name {
			next = next.WithTasks(renameClientTasks(doc.Tasks, c.ID, c.Name))
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return doc.Clients, nil
}

// Delete removes client id and every task whose clientId is id, in one saved
// document. It returns the remaining clients and tasks. Deleting an unknown
// id changes nothing.
func (r *ClientRepo) Delete(ctx context.Context, id string) ([]storage.Client, []storage.Task, error) {
	doc, err := r.gw.Update(ctx, func(doc *storage.Document) (*storage.Document, error) {
		idx := clientIndex(doc.Clients, id)
		if idx < 0 {
			return doc, nil
		}
		clients := make([]storage.Client, 0, len(doc.Clients)-1)
		clients = append(clients, doc.Clients[:idx]...)
		clients = append(clients, doc.Clients[idx+1:]...)

		tasks := make([]storage.Task, 0, len(doc.Tasks))
		for _, t := range doc.Tasks {
			if t.ClientID != id {
				tasks = append(tasks, t)
			}
		}
		return doc.WithClients(clients).WithTasks(tasks), nil
	})
	if err != nil {
		return nil, nil, err
	}
	return doc.Clients, doc.Tasks, nil
}

// Merge folds imported clients into the list. An incoming client matches an
// existing one by code (case-insensitive, trimmed), or by id when it has no
// code. A match keeps its id and takes the incoming name and extended fields;
// anything else is appended.
func (r *ClientRepo) Merge(ctx context.Context, incoming []storage.Client) (MergeResult, error) {
	var res MergeResult
	doc, err := r.gw.Update(ctx, func(doc *storage.Document) (*storage.Document, error) {
		res = MergeResult{}
		clients := make([]storage.Client, len(doc.Clients))
		copy(clients, doc.Clients)
		tasks := doc.Tasks
		renamed := false

		for _, in := range incoming {
			idx := matchClient(clients, in)
			if idx < 0 {
				if in.ID == "" {
					in.ID = uuid.NewString()
				}
				clients = append(clients, in)
				res.Added++
				continue
			}

			merged := mergeClient(clients[idx], in)
			if merged.Name != clients[idx].Name {
				tasks = renameClientTasks(tasks, merged.ID, merged.Name)
				renamed = true
			}
			clients[idx] = merged
			res.Updated++
		}

		if res.Added == 0 && res.Updated == 0 {
			return doc, nil
		}
		next := doc.WithClients(clients)
		if renamed {
			next = next.WithTasks(tasks)
		}
		return next, nil
	})
	if err != nil {
		return MergeResult{}, err
	}
	res.Clients = doc.Clients
	return res, nil
}

func clientIndex(clients []storage.Client, id string) int {
	for i, c := range clients {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func matchClient(clients []storage.Client, in storage.Client) int {
	code := normalizeCode(in.Code)
	if code == "" {
		if in.ID == "" {
			return -1
		}
		return clientIndex(clients, in.ID)
	}
	for i, c := range clients {
		if normalizeCode(c.Code) == code {
			return i
		}
	}
	return -1
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// mergeClient overlays in onto existing. The existing id and code are kept;
// an empty incoming name does not erase the existing one.
func mergeClient(existing, in storage.Client) storage.Client {
	out := existing
	if in.Name != "" {
		out.Name = in.Name
	}
	if len(in.Extended) > 0 {
		ext := make(map[string]json.RawMessage, len(existing.Extended)+len(in.Extended))
		for k, v := range existing.Extended {
			ext[k] = v
		}
		for k, v := range in.Extended {
			ext[k] = v
		}
		out.Extended = ext
	}
	return out
}

func renameClientTasks(tasks []storage.Task, clientID, name string) []storage.Task {
	out := make([]storage.Task, len(tasks))
	copy(out, tasks)
	for i := range out {
		if out[i].ClientID == clientID {
			out[i].ClientName = name
		}
	}
	return out
}
