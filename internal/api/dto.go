package api

import (
	"time"

	"researchchat/internal/domain"
)

// The server emits naive timestamps (no zone) for some records, which
// time.Time cannot decode, so wire records keep them as strings.

type documentDTO struct {
	ID               string `json:"id"`
	Filename         string `json:"filename"`
	OriginalFilename string `json:"original_filename"`
	ContentType      string `json:"content_type"`
	FileSize         int64  `json:"file_size"`
	CreatedAt        string `json:"created_at"`
}

func (d documentDTO) toDomain() domain.Document {
	return domain.Document{
		ID:               d.ID,
		Filename:         d.Filename,
		OriginalFilename: d.OriginalFilename,
		ContentType:      d.ContentType,
		FileSize:         d.FileSize,
		CreatedAt:        parseTime(d.CreatedAt),
	}
}

type folderDTO struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	ParentID  string              `json:"parent_id"`
	Documents []documentDTO       `json:"documents"`
	Papers    []domain.Paper      `json:"papers"`
	Repos     []domain.Repository `json:"repos"`
	Children  []folderDTO         `json:"children"`
}

func (f folderDTO) toDomain() domain.Folder {
	out := domain.Folder{
		ID:       f.ID,
		Name:     f.Name,
		ParentID: f.ParentID,
		Papers:   f.Papers,
		Repos:    f.Repos,
	}
	for _, d := range f.Documents {
		out.Documents = append(out.Documents, d.toDomain())
	}
	for _, c := range f.Children {
		out.Children = append(out.Children, c.toDomain())
	}
	return out
}

type libraryDTO struct {
	Folders       []folderDTO   `json:"folders"`
	RootDocuments []documentDTO `json:"root_documents"`
}

func (l libraryDTO) toDomain() *domain.Library {
	lib := &domain.Library{}
	for _, f := range l.Folders {
		lib.Folders = append(lib.Folders, f.toDomain())
	}
	for _, d := range l.RootDocuments {
		lib.RootDocuments = append(lib.RootDocuments, d.toDomain())
	}
	return lib
}

type embedResponseDTO struct {
	Results []domain.EmbedStatus `json:"results"`
}

type messageDTO struct {
	ID         string            `json:"id"`
	Role       domain.Role       `json:"role"`
	Content    string            `json:"content"`
	Citations  []domain.Citation `json:"citations"`
	Confidence *float64          `json:"confidence"`
	CreatedAt  string            `json:"created_at"`
}

func (m messageDTO) toDomain() domain.Message {
	return domain.Message{
		ID:         m.ID,
		Role:       m.Role,
		Content:    m.Content,
		Citations:  m.Citations,
		Confidence: m.Confidence,
		CreatedAt:  parseTime(m.CreatedAt),
	}
}

type conversationSummaryDTO struct {
	ID                 string             `json:"id"`
	Title              string             `json:"title"`
	Mode               domain.Mode        `json:"mode"`
	ContextMode        domain.ContextMode `json:"context_mode"`
	CreatedAt          string             `json:"created_at"`
	UpdatedAt          string             `json:"updated_at"`
	LastMessagePreview string             `json:"last_message_preview"`
}

func (s conversationSummaryDTO) toDomain() domain.ConversationSummary {
	mode := s.Mode
	if mode == "" {
		mode = domain.ModeGlobal
	}
	ctxMode := s.ContextMode
	if ctxMode == "" {
		ctxMode = domain.ContextRAG
	}
	return domain.ConversationSummary{
		ID:                 s.ID,
		Title:              s.Title,
		Mode:               mode,
		ContextMode:        ctxMode,
		CreatedAt:          parseTime(s.CreatedAt),
		UpdatedAt:          parseTime(s.UpdatedAt),
		LastMessagePreview: s.LastMessagePreview,
	}
}

type conversationDetailDTO struct {
	conversationSummaryDTO
	Messages    []messageDTO `json:"messages"`
	DocumentIDs []string     `json:"document_ids"`
}

func (d conversationDetailDTO) toDomain() *domain.Conversation {
	conv := &domain.Conversation{
		ConversationSummary: d.conversationSummaryDTO.toDomain(),
		DocumentIDs:         d.DocumentIDs,
	}
	for _, m := range d.Messages {
		conv.Messages = append(conv.Messages, m.toDomain())
	}
	return conv
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTime accepts zoned and naive timestamps; naive ones are taken as UTC.
func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
