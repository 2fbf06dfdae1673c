package domain

// ItemKind tags the three kinds of selectable sources.
type ItemKind string

const (
	KindDocument   ItemKind = "document"
	KindPaper      ItemKind = "paper"
	KindRepository ItemKind = "repository"
)

// Valid reports whether k is one of the known kinds.
func (k ItemKind) Valid() bool {
	switch k {
	case KindDocument, KindPaper, KindRepository:
		return true
	}
	return false
}

// SelectionKey identifies an item inside a selection.
type SelectionKey struct {
	Kind ItemKind
	ID   string
}

// SelectionItem is one source chosen for the next embed or chat action.
// Paper and Repo carry the catalog record for their kinds; readiness is read from them.
type SelectionItem struct {
	Kind        ItemKind
	ID          string
	Label       string
	ContentType string
	Paper       *Paper
	Repo        *Repository
}

// Key returns the identity of the item.
func (i SelectionItem) Key() SelectionKey {
	return SelectionKey{Kind: i.Kind, ID: i.ID}
}

// StatusID returns the document id whose embed status describes this item,
// or "" when the item has no document yet.
func (i SelectionItem) StatusID() string {
	switch i.Kind {
	case KindDocument:
		return i.ID
	case KindPaper:
		if i.Paper != nil {
			return i.Paper.DocumentID
		}
	case KindRepository:
		if i.Repo != nil {
			return i.Repo.DocumentID
		}
	}
	return ""
}

// DocumentItem builds a selection item for an uploaded document.
func DocumentItem(d Document) SelectionItem {
	return SelectionItem{Kind: KindDocument, ID: d.ID, Label: d.Label(), ContentType: d.ContentType}
}

// PaperItem builds a selection item for a bookmarked paper.
func PaperItem(p Paper) SelectionItem {
	return SelectionItem{Kind: KindPaper, ID: p.PaperID, Label: p.Title, ContentType: "application/pdf", Paper: &p}
}

// RepositoryItem builds a selection item for a bookmarked repository.
func RepositoryItem(r Repository) SelectionItem {
	return SelectionItem{Kind: KindRepository, ID: r.RepoID, Label: r.FullName, ContentType: "text/x-github-repo", Repo: &r}
}
