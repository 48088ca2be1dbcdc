package repo

import (
	"context"

	"github.com/JamesPrial/officedesk/internal/docstore"
	"github.com/JamesPrial/officedesk/internal/storage"
)

// ProfileRepo manages client profiles.
type ProfileRepo struct {
	gw *docstore.Gateway
}

// Get returns the profile of clientID from the cached document without any
// I/O. A client without a profile, or a gateway that has not loaded yet,
// yields an empty profile.
func (r *ProfileRepo) Get(clientID string) storage.ClientProfile {
	if doc := r.gw.Cached(); doc != nil {
		for _, p := range doc.ClientProfiles {
			if p.ClientID == clientID {
				return p
			}
		}
	}
	return storage.ClientProfile{ClientID: clientID, Tags: []string{}}
}

// Save inserts or replaces the profile with p.ClientID.
func (r *ProfileRepo) Save(ctx context.Context, p storage.ClientProfile) ([]storage.ClientProfile, error) {
	if p.Tags == nil {
		p.Tags = []string{}
	}
	doc, err := r.gw.Update(ctx, func(doc *storage.Document) (*storage.Document, error) {
		profiles := make([]storage.ClientProfile, 0, len(doc.ClientProfiles)+1)
		replaced := false
		for _, existing := range doc.ClientProfiles {
			if existing.ClientID == p.ClientID {
				profiles = append(profiles, p)
				replaced = true
				continue
			}
			profiles = append(profiles, existing)
		}
		if !replaced {
			profiles = append(profiles, p)
		}
		return doc.WithClientProfiles(profiles), nil
	})
	if err != nil {
		return nil, err
	}
	return doc.ClientProfiles, nil
}
