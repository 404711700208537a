package styles

// Style is the assembled view of one cell format: the resolved font, fill,
// and border bodies plus the effective number-format string.  It is the
// unit callers build styles with; [Catalog.Intern] decomposes it into
// catalog indices and returns the xf handle.
type Style struct {
	Font         *Font
	Fill         *Fill
	Border       *Border
	Alignment    *Alignment
	Protection   *Protection
	NumberFormat string
}

// Intern decomposes s into catalog entries and returns the handle of the
// resulting xf.  Nil components map to the default table entries.
func (c *Catalog) Intern(s Style) Handle {
	var xf XF
	if s.Font != nil {
		xf.FontID = c.InternFont(*s.Font)
		xf.ApplyFont = true
	}
	if s.Fill != nil {
		xf.FillID = c.InternFill(*s.Fill)
		xf.ApplyFill = true
	}
	if s.Border != nil {
		xf.BorderID = c.InternBorder(*s.Border)
		xf.ApplyBorder = true
	}
	if s.NumberFormat != "" {
		xf.NumFmtID = uint32(c.InternNumFmt(s.NumberFormat))
		xf.ApplyNumberFmt = true
	}
	if s.Alignment != nil {
		xf.Alignment = *s.Alignment
		xf.HasAlignment = true
		xf.ApplyAlignment = true
	}
	if s.Protection != nil {
		xf.Protection = *s.Protection
		xf.HasProtection = true
		xf.ApplyProtect = true
	}
	return c.InternXF(xf)
}

// StyleOf reassembles the Style behind handle h.  Components the xf does
// not apply are nil.
func (c *Catalog) StyleOf(h Handle) Style {
	xf := c.XF(h)
	var s Style
	if xf.ApplyFont {
		f := c.Font(xf.FontID)
		s.Font = &f
	}
	if xf.ApplyFill {
		f := c.Fill(xf.FillID)
		s.Fill = &f
	}
	if xf.ApplyBorder {
		b := c.Border(xf.BorderID)
		s.Border = &b
	}
	if xf.ApplyNumberFmt {
		s.NumberFormat = c.NumFmtString(int(xf.NumFmtID))
	}
	if xf.HasAlignment {
		a := xf.Alignment
		s.Alignment = &a
	}
	if xf.HasProtection {
		p := xf.Protection
		s.Protection = &p
	}
	return s
}
