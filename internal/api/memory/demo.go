package memory

import (
	"time"

	"researchchat/internal/domain"
)

// DemoLibrary is the library served in offline mode.
func DemoLibrary() domain.Library {
	added := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)
	return domain.Library{
		Folders: []domain.Folder{
			{
				ID:   "folder-retrieval",
				Name: "Retrieval",
				Documents: []domain.Document{
					{ID: "doc-notes", Filename: "notes.md", OriginalFilename: "Reading notes.md", ContentType: "text/markdown", FileSize: 4096, CreatedAt: added},
				},
				Papers: []domain.Paper{
					{PaperID: "paper-rag", Title: "Retrieval-Augmented Generation for Knowledge-Intensive NLP Tasks",
						PDFURL: "https://arxiv.org/pdf/2005.11401", ArxivID: "2005.11401", Source: "arxiv", FolderID: "folder-retrieval"},
					{PaperID: "paper-dpr", Title: "Dense Passage Retrieval for Open-Domain Question Answering",
						HasLocalPDF: true, DocumentID: "doc-dpr", Source: "arxiv", FolderID: "folder-retrieval"},
					{PaperID: "paper-offline", Title: "A paper without a PDF", Source: "semantic_scholar", FolderID: "folder-retrieval"},
				},
				Children: []domain.Folder{
					{
						ID:       "folder-code",
						Name:     "Code",
						ParentID: "folder-retrieval",
						Repos: []domain.Repository{
							{RepoID: "repo-faiss", FullName: "facebookresearch/faiss", HTMLURL: "https://github.com/facebookresearch/faiss",
								StarsCount: 30000, PrimaryLanguage: "C++", FolderID: "folder-code"},
						},
					},
					{ID: "folder-empty", Name: "Empty", ParentID: "folder-retrieval"},
				},
			},
		},
		RootDocuments: []domain.Document{
			{ID: "doc-thesis", Filename: "thesis.pdf", OriginalFilename: "Thesis draft.pdf", ContentType: "application/pdf", FileSize: 1 << 20, CreatedAt: added},
		},
	}
}
