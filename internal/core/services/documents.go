package services

import "chatgate/internal/core/domain"

// Field names of the stored documents.
const (
	fieldName         = "name"
	fieldCreatedAt    = "created_at"
	fieldRole         = "role"
	fieldMessage      = "message"
	fieldTimestamp    = "timestamp"
	fieldSystem       = "system"
	fieldLogin        = "login"
	fieldPasswordHash = "password_hash"
)

var roleQuery = domain.Query{OrderBy: fieldRole, Direction: domain.Ascending}

func roleSetFromDocuments(docs []domain.Document) domain.RoleSet {
	set := make(domain.RoleSet, len(docs))
	for _, d := range docs {
		if role := d.Fields.GetString(fieldRole); role != "" {
			set.Add(domain.RoleName(role))
		}
	}
	return set
}

func roomFromDocument(d domain.Document) domain.Room {
	created, ok := d.Fields.GetTime(fieldCreatedAt)
	if !ok {
		created = d.CreateTime
	}
	return domain.Room{
		ID:        domain.RoomID(d.ID),
		Name:      d.Fields.GetString(fieldName),
		CreatedAt: created,
	}
}

func messageFromDocument(d domain.Document) domain.Message {
	sent, ok := d.Fields.GetTime(fieldTimestamp)
	if !ok {
		sent = d.CreateTime
	}
	return domain.Message{
		ID:         d.ID,
		AuthorName: d.Fields.GetString(fieldName),
		Body:       d.Fields.GetString(fieldMessage),
		SentAt:     sent,
		System:     d.Fields.GetBool(fieldSystem),
	}
}

func messagesFromDocuments(docs []domain.Document) []domain.Message {
	out := make([]domain.Message, len(docs))
	for i, d := range docs {
		out[i] = messageFromDocument(d)
	}
	return out
}

func userFromDocument(d domain.Document) domain.UserRecord {
	created, ok := d.Fields.GetTime(fieldCreatedAt)
	if !ok {
		created = d.CreateTime
	}
	return domain.UserRecord{
		ID:           domain.UserID(d.ID),
		Login:        d.Fields.GetString(fieldLogin),
		DisplayName:  d.Fields.GetString(fieldName),
		PasswordHash: d.Fields.GetString(fieldPasswordHash),
		CreatedAt:    created,
	}
}

func messageFields(author, body string, system bool) domain.Fields {
	fields := domain.Fields{
		fieldName:      author,
		fieldMessage:   body,
		fieldTimestamp: domain.ServerTimestamp,
	}
	if system {
		fields[fieldSystem] = true
	}
	return fields
}

func roleFields(role domain.RoleName) domain.Fields {
	return domain.Fields{fieldRole: string(role)}
}
