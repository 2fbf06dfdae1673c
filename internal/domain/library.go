package domain

import "time"

// Document is an uploaded file that can be indexed for document chat.
type Document struct {
	ID               string    `json:"id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type"`
	FileSize         int64     `json:"file_size"`
	CreatedAt        time.Time `json:"created_at"`
}

// Label returns the name shown to the user for this document.
func (d Document) Label() string {
	if d.OriginalFilename != "" {
		return d.OriginalFilename
	}
	if d.Filename != "" {
		return d.Filename
	}
	return d.ID
}

// Paper is a bookmarked paper. Its PDF is downloaded server-side on first embed.
type Paper struct {
	PaperID     string `json:"paper_id"`
	Title       string `json:"title"`
	PDFURL      string `json:"pdf_url,omitempty"`
	ArxivID     string `json:"arxiv_id,omitempty"`
	Source      string `json:"source,omitempty"`
	HasLocalPDF bool   `json:"has_local_pdf"`
	DocumentID  string `json:"document_id,omitempty"`
	FolderID    string `json:"folder_id"`
}

// Retrievable reports whether the paper has a PDF the server can index,
// either already stored or downloadable.
func (p Paper) Retrievable() bool {
	return p.HasLocalPDF || p.PDFURL != ""
}

// Repository is a bookmarked code repository that can be ingested for document chat.
type Repository struct {
	RepoID          string `json:"repo_id"`
	FullName        string `json:"full_name"`
	Description     string `json:"description,omitempty"`
	HTMLURL         string `json:"html_url"`
	StarsCount      int    `json:"stars_count"`
	PrimaryLanguage string `json:"primary_language,omitempty"`
	HasLocalDoc     bool   `json:"has_local_doc"`
	DocumentID      string `json:"document_id,omitempty"`
	FolderID        string `json:"folder_id"`
}

// Folder is one node of the library tree. ParentID is navigational only.
type Folder struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	ParentID  string       `json:"parent_id,omitempty"`
	Documents []Document   `json:"documents"`
	Papers    []Paper      `json:"papers"`
	Repos     []Repository `json:"repos"`
	Children  []Folder     `json:"children"`
}

// Empty reports whether the folder holds no items and no non-empty children.
// Empty folders still exist but are not rendered.
func (f Folder) Empty() bool {
	if len(f.Documents) > 0 || len(f.Papers) > 0 || len(f.Repos) > 0 {
		return false
	}
	for _, c := range f.Children {
		if !c.Empty() {
			return false
		}
	}
	return true
}

// Library is a snapshot of every source available to the user.
type Library struct {
	Folders       []Folder   `json:"folders"`
	RootDocuments []Document `json:"root_documents"`
}

// Walk visits every folder depth-first, parents before children.
func (l Library) Walk(fn func(Folder)) {
	var visit func([]Folder)
	visit = func(fs []Folder) {
		for _, f := range fs {
			fn(f)
			visit(f.Children)
		}
	}
	visit(l.Folders)
}

// FindDocument looks a document up in every folder and at the root.
func (l Library) FindDocument(id string) (Document, bool) {
	for _, d := range l.RootDocuments {
		if d.ID == id {
			return d, true
		}
	}
	var (
		found Document
		ok    bool
	)
	l.Walk(func(f Folder) {
		for _, d := range f.Documents {
			if !ok && d.ID == id {
				found, ok = d, true
			}
		}
	})
	return found, ok
}

// FindPaper looks a bookmarked paper up by paper id.
func (l Library) FindPaper(id string) (Paper, bool) {
	var (
		found Paper
		ok    bool
	)
	l.Walk(func(f Folder) {
		for _, p := range f.Papers {
			if !ok && p.PaperID == id {
				found, ok = p, true
			}
		}
	})
	return found, ok
}

// FindRepository looks a bookmarked repository up by repo id.
func (l Library) FindRepository(id string) (Repository, bool) {
	var (
		found Repository
		ok    bool
	)
	l.Walk(func(f Folder) {
		for _, r := range f.Repos {
			if !ok && r.RepoID == id {
				found, ok = r, true
			}
		}
	})
	return found, ok
}
