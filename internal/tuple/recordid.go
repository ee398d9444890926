package tuple

import "fmt"

// PageID identifies a page by owning table and page number.
type PageID struct {
	Table  uint64
	Number int
}

func (p PageID) String() string {
	return fmt.Sprintf("%d:%d", p.Table, p.Number)
}

// RecordID locates a tuple on disk. The pair is comparable so it can key maps.
type RecordID struct {
	Page PageID
	Slot int
}

func (r RecordID) String() string {
	return fmt.Sprintf("%s/%d", r.Page, r.Slot)
}
