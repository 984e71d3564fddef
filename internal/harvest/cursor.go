package harvest

// Cursor is the stream position of one harvest: the 1-based index of the last
// row read and whether the source is done. It is owned by a single Harvester
// and never reset.
type Cursor struct {
	row       int64
	maxRows   int64
	exhausted bool
}

func newCursor(maxRows int) Cursor {
	return Cursor{maxRows: int64(maxRows)}
}

// Row returns the number of rows read so far.
func (c *Cursor) Row() int64 { return c.row }

// Exhausted reports whether the source hit EOF or the row cap.
func (c *Cursor) Exhausted() bool { return c.exhausted }

// capped reports whether the row cap has been reached.
func (c *Cursor) capped() bool { return c.maxRows > 0 && c.row >= c.maxRows }

// advance counts one row read and returns its ordinal. Reaching the cap ends
// the stream immediately.
func (c *Cursor) advance() int64 {
	c.row++
	if c.capped() {
		c.exhausted = true
	}
	return c.row
}

func (c *Cursor) finish() { c.exhausted = true }
