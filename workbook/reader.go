package workbook

import (
	"bytes"
	"encoding/xml"
	"io"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/TsubasaBE/go-xlsx/cellref"
	"github.com/TsubasaBE/go-xlsx/formula"
	"github.com/TsubasaBE/go-xlsx/internal/container"
	"github.com/TsubasaBE/go-xlsx/internal/rels"
	"github.com/TsubasaBE/go-xlsx/styles"
	"github.com/TsubasaBE/go-xlsx/worksheet"
	"github.com/TsubasaBE/go-xlsx/xlsxerr"
)

// Load opens and decodes the named .xlsx file.
func Load(path string) (*Workbook, error) {
	r, closeFn, err := container.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return load(r)
}

// LoadBytes decodes an .xlsx archive held in memory.
func LoadBytes(data []byte) (*Workbook, error) {
	r, err := container.NewReaderBytes(data)
	if err != nil {
		return nil, err
	}
	return load(r)
}

// LoadReader decodes an .xlsx archive from an arbitrary ReaderAt.  size
// must be the total byte length of the archive.
func LoadReader(r io.ReaderAt, size int64) (*Workbook, error) {
	cr, err := container.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	return load(cr)
}

// sheetInfo is one <sheet> entry of the workbook part.
type sheetInfo struct {
	name    string
	sheetID uint32
	relID   string
	state   string
}

// sheetSource bundles the pre-read bytes one worksheet decode needs, so
// the parallel phase touches the archive not at all.
type sheetSource struct {
	info     sheetInfo
	partName string
	data     []byte
	rels     map[string]rels.Rel
	comments []byte
	tables   [][]byte
}

// load runs the decode pipeline: workbook, shared strings, and styles
// sequentially (they are dependencies of every sheet), then each worksheet
// part in parallel.
func load(r *container.Reader) (*Workbook, error) {
	wb := New()

	if !r.Has("xl/workbook.xml") {
		return nil, xlsxerr.New(xlsxerr.InvalidFormat, "archive has no xl/workbook.xml part")
	}
	wbData, err := r.Part("xl/workbook.xml")
	if err != nil {
		return nil, err
	}
	infos, names, date1904, err := parseWorkbookPart(wbData)
	if err != nil {
		return nil, err
	}
	wb.Date1904 = date1904
	wb.definedNames = names

	seenIDs := make(map[uint32]bool, len(infos))
	for _, info := range infos {
		if seenIDs[info.sheetID] {
			return nil, xlsxerr.New(xlsxerr.InvalidFormat, "duplicate internal sheet id %d", info.sheetID)
		}
		seenIDs[info.sheetID] = true
	}

	var relMap map[string]rels.Rel
	if r.Has("xl/_rels/workbook.xml.rels") {
		relData, err := r.Part("xl/_rels/workbook.xml.rels")
		if err != nil {
			return nil, err
		}
		if relMap, err = rels.Parse(relData); err != nil {
			return nil, xlsxerr.Wrap(xlsxerr.Xml, err, "workbook relationships")
		}
	}

	var sst []string
	if r.Has("xl/sharedStrings.xml") {
		sstData, err := r.Part("xl/sharedStrings.xml")
		if err != nil {
			return nil, err
		}
		if sst, err = parseSharedStrings(sstData, wb); err != nil {
			return nil, err
		}
	}

	if r.Has("xl/styles.xml") {
		stData, err := r.Part("xl/styles.xml")
		if err != nil {
			return nil, err
		}
		cat, err := parseStylesPart(stData)
		if err != nil {
			return nil, err
		}
		wb.catalog = cat
	}

	// Gather every sheet's bytes up front; archive access is sequential,
	// decoding is not.
	sources := make([]sheetSource, len(infos))
	for i, info := range infos {
		src, err := readSheetSource(r, info, relMap)
		if err != nil {
			return nil, err
		}
		sources[i] = src
	}

	sheets := make([]*worksheet.Worksheet, len(sources))
	for i, src := range sources {
		sheets[i] = worksheet.New(src.info.name, src.info.sheetID, wb.pool)
	}

	decode := func(i int) error {
		src := sources[i]
		ws := sheets[i]
		if err := parseWorksheetPart(src.partName, src.data, ws, sst, src.rels, wb.catalog); err != nil {
			return err
		}
		for _, tbl := range src.tables {
			t, err := parseTablePart(tbl)
			if err != nil {
				return err
			}
			ws.Tables = append(ws.Tables, t)
		}
		if len(src.comments) > 0 {
			if err := parseCommentsPart(src.comments, ws); err != nil {
				return err
			}
		}
		return nil
	}

	if len(sources) > 1 {
		var g errgroup.Group
		g.SetLimit(runtime.GOMAXPROCS(0))
		for i := range sources {
			i := i
			g.Go(func() error { return decode(i) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else if len(sources) == 1 {
		if err := decode(0); err != nil {
			return nil, err
		}
	}

	for i, ws := range sheets {
		wb.attachSheet(ws, sources[i].info.state)
	}
	return wb, nil
}

// readSheetSource resolves one sheet's part path and pre-reads its bytes
// together with the sheet relationships, comments, and table parts.
func readSheetSource(r *container.Reader, info sheetInfo, relMap map[string]rels.Rel) (sheetSource, error) {
	partName := "xl/worksheets/sheet" + strconv.FormatUint(uint64(info.sheetID), 10) + ".xml"
	if rel, ok := relMap[info.relID]; ok {
		partName = resolveTarget("xl", rel.Target)
	}
	data, err := r.Part(partName)
	if err != nil {
		return sheetSource{}, err
	}
	src := sheetSource{info: info, partName: partName, data: data}

	relsPath := relsPathFor(partName)
	if r.Has(relsPath) {
		relData, err := r.Part(relsPath)
		if err != nil {
			return sheetSource{}, err
		}
		sheetRels, err := rels.Parse(relData)
		if err != nil {
			return sheetSource{}, xlsxerr.Wrap(xlsxerr.Xml, err, "relationships of %s", partName)
		}
		src.rels = sheetRels
		base := partName[:strings.LastIndexByte(partName, '/')]
		for _, rel := range sheetRels {
			target := resolveTarget(base, rel.Target)
			switch rel.Type {
			case rels.TypeComments:
				if r.Has(target) {
					if src.comments, err = r.Part(target); err != nil {
						return sheetSource{}, err
					}
				}
			case rels.TypeTable:
				if r.Has(target) {
					tbl, err := r.Part(target)
					if err != nil {
						return sheetSource{}, err
					}
					src.tables = append(src.tables, tbl)
				}
			}
		}
	}
	return src, nil
}

// resolveTarget resolves a relationship target against its base directory.
// Absolute targets ("/xl/...") are package-rooted; "../" segments step up.
func resolveTarget(base, target string) string {
	if strings.HasPrefix(target, "/") {
		return target[1:]
	}
	for strings.HasPrefix(target, "../") {
		target = target[3:]
		if i := strings.LastIndexByte(base, '/'); i >= 0 {
			base = base[:i]
		} else {
			base = ""
		}
	}
	if base == "" {
		return target
	}
	return base + "/" + target
}

// relsPathFor returns the sibling .rels path of a part
// ("xl/worksheets/sheet1.xml" → "xl/worksheets/_rels/sheet1.xml.rels").
func relsPathFor(partName string) string {
	i := strings.LastIndexByte(partName, '/')
	return partName[:i+1] + "_rels/" + partName[i+1:] + ".rels"
}

// ── XML token helpers ─────────────────────────────────────────────────────────

func attr(se xml.StartElement, name string) (string, bool) {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func attrBool(se xml.StartElement, name string) bool {
	v, _ := attr(se, name)
	return v == "1" || v == "true"
}

func attrUint(se xml.StartElement, name string) (uint32, bool) {
	v, ok := attr(se, name)
	if !ok {
		return 0, false
	}
	u, ok := cellref.ParseUint([]byte(v))
	return u, ok
}

func attrFloat(se xml.StartElement, name string) (float64, bool) {
	v, ok := attr(se, name)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func attrInt(se xml.StartElement, name string) (int, bool) {
	v, ok := attr(se, name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// xmlFail wraps a decoder failure with the part name and offset.
func xmlFail(part string, off int64, err error) error {
	return &xlsxerr.Error{Kind: xlsxerr.Xml, Part: part, Offset: off, Msg: "malformed XML", Err: err}
}

// collectText reads all character data up to the end element matching the
// already-consumed start element, descending into children.
func collectText(d *xml.Decoder) (string, error) {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			sb.Write(t)
		}
	}
	return sb.String(), nil
}

// ── workbook part ─────────────────────────────────────────────────────────────

const workbookPartName = "xl/workbook.xml"

func parseWorkbookPart(data []byte) ([]sheetInfo, []DefinedName, bool, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	var (
		infos    []sheetInfo
		names    []DefinedName
		date1904 bool
	)
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, false, xmlFail(workbookPartName, d.InputOffset(), err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "workbookPr":
			date1904 = attrBool(se, "date1904")
		case "sheet":
			name, hasName := attr(se, "name")
			relID, hasRel := attr(se, "id") // r:id — matched by local name
			sheetID, hasID := attrUint(se, "sheetId")
			if !hasName || !hasRel || !hasID {
				return nil, nil, false, xlsxerr.New(xlsxerr.InvalidFormat,
					"sheet entry missing name, sheetId, or r:id in %s", workbookPartName)
			}
			state, _ := attr(se, "state")
			infos = append(infos, sheetInfo{name: name, sheetID: sheetID, relID: relID, state: state})
		case "definedName":
			name, _ := attr(se, "name")
			scope := -1
			if ls, ok := attrInt(se, "localSheetId"); ok {
				scope = ls
			}
			text, err := collectText(d)
			if err != nil {
				return nil, nil, false, xmlFail(workbookPartName, d.InputOffset(), err)
			}
			if name != "" {
				names = append(names, DefinedName{Name: name, RefersTo: strings.TrimSpace(text), SheetIndex: scope})
			}
		}
	}
	return infos, names, date1904, nil
}

// ── shared strings part ───────────────────────────────────────────────────────

const sstPartName = "xl/sharedStrings.xml"

// parseSharedStrings returns the shared strings in document order.  Rich
// text runs are flattened to their concatenated plain text; the original
// <si> inner markup is recorded on wb for round-trip.
func parseSharedStrings(data []byte, wb *Workbook) ([]string, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	var (
		out      []string
		sb       strings.Builder
		inSI     bool
		inT      bool
		rich     bool
		innerOff int64
		prevOff  int64
	)
	for {
		prevOff = d.InputOffset()
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, xmlFail(sstPartName, d.InputOffset(), err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "si":
				inSI = true
				rich = false
				sb.Reset()
				innerOff = d.InputOffset()
			case "t":
				if inSI {
					inT = true
				}
			case "r", "rPh":
				if inSI {
					rich = true
				}
			}
		case xml.CharData:
			if inT {
				sb.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inT = false
			case "si":
				content := sb.String()
				out = append(out, content)
				if rich && innerOff <= prevOff {
					wb.richText[content] = string(data[innerOff:prevOff])
				}
				inSI = false
			}
		}
	}
	// Intern every entry in document order so the pool holds the table's
	// strings; the sheet decode that follows resolves s= indices through out.
	for _, s := range out {
		wb.pool.Intern(s)
	}
	return out, nil
}

// ── styles part ───────────────────────────────────────────────────────────────

const stylesPartName = "xl/styles.xml"

func parseStylesPart(data []byte) (*styles.Catalog, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	cat := styles.Empty()

	var (
		inFonts    bool
		inFills    bool
		inBorders  bool
		inCellXfs  bool
		inFont     bool
		inFill     bool
		inBorder   bool
		inXF       bool
		font       styles.Font
		fill       styles.Fill
		border     styles.Border
		edge       *styles.BorderEdge
		xf         styles.XF
		borderKind string
	)

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, xmlFail(stylesPartName, d.InputOffset(), err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "fonts":
				inFonts = true
			case "fills":
				inFills = true
			case "borders":
				inBorders = true
			case "cellXfs":
				inCellXfs = true
			case "numFmt":
				id, okID := attrInt(t, "numFmtId")
				code, okCode := attr(t, "formatCode")
				if okID && okCode {
					cat.AddNumFmt(id, code)
				}
			case "font":
				if inFonts {
					inFont = true
					font = styles.Font{}
				}
			case "fill":
				if inFills {
					inFill = true
					fill = styles.Fill{}
				}
			case "border":
				if inBorders {
					inBorder = true
					border = styles.Border{}
				}
			case "xf":
				if inCellXfs {
					inXF = true
					xf = styles.XF{}
					if id, ok := attrUint(t, "fontId"); ok {
						xf.FontID = id
					}
					if id, ok := attrUint(t, "fillId"); ok {
						xf.FillID = id
					}
					if id, ok := attrUint(t, "borderId"); ok {
						xf.BorderID = id
					}
					if id, ok := attrUint(t, "numFmtId"); ok {
						xf.NumFmtID = id
					}
					xf.ApplyFont = attrBool(t, "applyFont")
					xf.ApplyFill = attrBool(t, "applyFill")
					xf.ApplyBorder = attrBool(t, "applyBorder")
					xf.ApplyNumberFmt = attrBool(t, "applyNumberFormat")
					xf.ApplyAlignment = attrBool(t, "applyAlignment")
					xf.ApplyProtect = attrBool(t, "applyProtection")
				}
			case "alignment":
				if inXF {
					var a styles.Alignment
					a.Horizontal, _ = attr(t, "horizontal")
					a.Vertical, _ = attr(t, "vertical")
					a.WrapText = attrBool(t, "wrapText")
					a.ShrinkToFit = attrBool(t, "shrinkToFit")
					if n, ok := attrInt(t, "textRotation"); ok {
						a.TextRotation = n
					}
					if n, ok := attrInt(t, "indent"); ok {
						a.Indent = n
					}
					xf.Alignment = a
					xf.HasAlignment = true
				}
			case "protection":
				if inXF {
					xf.Protection = styles.Protection{
						Locked: attrBool(t, "locked"),
						Hidden: attrBool(t, "hidden"),
					}
					xf.HasProtection = true
				}
			case "b", "i", "u", "strike", "sz", "name", "vertAlign":
				if inFont {
					switch t.Name.Local {
					case "b":
						font.Bold = fontFlag(t)
					case "i":
						font.Italic = fontFlag(t)
					case "u":
						font.Underline = fontFlag(t)
					case "strike":
						font.Strike = fontFlag(t)
					case "sz":
						font.Size, _ = attrFloat(t, "val")
					case "name":
						font.Name, _ = attr(t, "val")
					case "vertAlign":
						font.VertAlign, _ = attr(t, "val")
					}
				}
			case "color":
				c := colorAttr(t)
				switch {
				case inFont:
					font.Color = c
				case edge != nil:
					edge.Color = c
				}
			case "patternFill":
				if inFill {
					fill.Pattern, _ = attr(t, "patternType")
				}
			case "fgColor":
				if inFill {
					fill.FgColor = colorAttr(t)
				}
			case "bgColor":
				if inFill {
					fill.BgColor = colorAttr(t)
				}
			case "left", "right", "top", "bottom", "diagonal":
				if inBorder {
					borderKind = t.Name.Local
					style, _ := attr(t, "style")
					switch borderKind {
					case "left":
						border.Left.Style = style
						edge = &border.Left
					case "right":
						border.Right.Style = style
						edge = &border.Right
					case "top":
						border.Top.Style = style
						edge = &border.Top
					case "bottom":
						border.Bottom.Style = style
						edge = &border.Bottom
					case "diagonal":
						border.Diagonal.Style = style
						edge = &border.Diagonal
					}
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "fonts":
				inFonts = false
			case "fills":
				inFills = false
			case "borders":
				inBorders = false
			case "cellXfs":
				inCellXfs = false
			case "font":
				if inFont {
					cat.AppendRawFont(font)
					inFont = false
				}
			case "fill":
				if inFill {
					cat.AppendRawFill(fill)
					inFill = false
				}
			case "border":
				if inBorder {
					cat.AppendRawBorder(border)
					inBorder = false
				}
			case "left", "right", "top", "bottom", "diagonal":
				edge = nil
			case "xf":
				if inXF {
					cat.AppendRawXF(xf)
					inXF = false
				}
			}
		}
	}

	cat.EnsureDefaults()
	// An xf pointing past the tables it indexes is a dangling reference.
	for i := 0; i < cat.XFCount(); i++ {
		x := cat.XF(styles.Handle(i))
		if int(x.FontID) >= cat.FontCount() || int(x.FillID) >= cat.FillCount() || int(x.BorderID) >= cat.BorderCount() {
			return nil, xlsxerr.New(xlsxerr.InvalidFormat,
				"xf %d references missing font/fill/border entry in %s", i, stylesPartName)
		}
	}
	return cat, nil
}

// fontFlag reads a font toggle element: absent val means true, val="0"
// means false.
func fontFlag(se xml.StartElement) bool {
	v, ok := attr(se, "val")
	if !ok {
		return true
	}
	return v != "0" && v != "false"
}

// colorAttr preserves a color's representation: "FFRRGGBB" from rgb=, a
// "theme:N" reference, or "auto" from auto=.  Theme colors are never resolved to RGB because the
// reference itself must survive a round trip.
func colorAttr(se xml.StartElement) string {
	if rgb, ok := attr(se, "rgb"); ok {
		return rgb
	}
	if theme, ok := attr(se, "theme"); ok {
		return "theme:" + theme
	}
	if attrBool(se, "auto") {
		return "auto"
	}
	return ""
}

// ── worksheet part ────────────────────────────────────────────────────────────

// sharedMaster records a shared-formula definition for translation.
type sharedMaster struct {
	row, col uint32
	text     string
}

// estimateCells converts a dimension ref into a store reservation,
// rejecting implausible rectangles.
func estimateCells(ref string) int {
	r1, c1, r2, c2, err := cellref.ParseRange(ref)
	if err != nil {
		return 0
	}
	cells := uint64(r2-r1+1) * uint64(c2-c1+1)
	const maxReserve = 5_000_000
	if cells == 0 || cells > maxReserve {
		return 0
	}
	return int(cells)
}

func parseWorksheetPart(partName string, data []byte, ws *worksheet.Worksheet, sst []string, sheetRels map[string]rels.Rel, cat *styles.Catalog) error {
	d := xml.NewDecoder(bytes.NewReader(data))

	var (
		inSheetData bool
		inCell      bool
		inV, inF    bool
		inIS, inIST bool

		curRow    uint32
		haveCell  bool
		cellRow   uint32
		cellCol   uint32
		cellType  string
		cellStyle uint32
		hasStyle  bool

		vText  strings.Builder
		fText  strings.Builder
		isText strings.Builder

		fPresent bool
		fShared  bool
		fRef     string
		fSI      int
		fHasSI   bool

		masters = make(map[int]sharedMaster)

		curCF     *worksheet.ConditionalFormat
		curRule   *worksheet.CFRule
		inCFForml bool
		cfFormula strings.Builder
		curDV     *worksheet.DataValidation
		dvFormula int // 1 or 2 while inside formula1/formula2
		hfElement string
		hfText    strings.Builder
	)

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return xmlFail(partName, d.InputOffset(), err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "dimension":
				if ref, ok := attr(t, "ref"); ok {
					ws.Reserve(estimateCells(ref))
				}
			case "sheetFormatPr":
				pr := &worksheet.FormatPr{}
				if h, ok := attrFloat(t, "defaultRowHeight"); ok {
					pr.DefaultRowHeight = h
					pr.HasRowHeight = true
				}
				if w, ok := attrFloat(t, "defaultColWidth"); ok {
					pr.DefaultColWidth = w
					pr.HasColWidth = true
				}
				ws.FormatPr = pr
			case "sheetView":
				v := ws.SheetView
				if v == nil {
					v = &worksheet.View{}
					ws.SheetView = v
				}
				if g, ok := attr(t, "showGridLines"); ok && (g == "0" || g == "false") {
					v.HideGridLines = true
				}
				v.TabSelected = attrBool(t, "tabSelected")
			case "pane":
				if state, _ := attr(t, "state"); state == "frozen" {
					v := ws.SheetView
					if v == nil {
						v = &worksheet.View{}
						ws.SheetView = v
					}
					if x, ok := attrUint(t, "xSplit"); ok {
						v.FrozenCols = x
					}
					if y, ok := attrUint(t, "ySplit"); ok {
						v.FrozenRows = y
					}
				}
			case "tabColor":
				ws.TabColor = colorAttr(t)
			case "col":
				min, okMin := attrUint(t, "min")
				max, okMax := attrUint(t, "max")
				if !okMin || !okMax {
					continue
				}
				dim := worksheet.ColDim{Min: min, Max: max, Hidden: attrBool(t, "hidden")}
				if w, ok := attrFloat(t, "width"); ok {
					dim.Width = w
					dim.HasWidth = true
				}
				if s, ok := attrUint(t, "style"); ok {
					dim.Style = s
					dim.HasStyle = true
				}
				if err := ws.SetColDim(dim); err != nil {
					return xlsxerr.Parse(partName, d.InputOffset(), "column definition %d..%d: %v", min, max, err)
				}
			case "sheetData":
				inSheetData = true
			case "row":
				if !inSheetData {
					continue
				}
				if rStr, ok := attr(t, "r"); ok {
					r, ok := cellref.ParseUint([]byte(rStr))
					if !ok || r == 0 || r > cellref.MaxRow {
						return xlsxerr.Parse(partName, d.InputOffset(), "invalid row index %q", rStr)
					}
					curRow = r
				} else {
					curRow++
				}
				var dim worksheet.RowDim
				dimSet := false
				if h, ok := attrFloat(t, "ht"); ok {
					dim.Height = h
					dim.HasHeight = true
					dimSet = true
				}
				if attrBool(t, "hidden") {
					dim.Hidden = true
					dimSet = true
				}
				if lvl, ok := attrUint(t, "outlineLevel"); ok && lvl > 0 {
					dim.OutlineLevel = uint8(lvl)
					dimSet = true
				}
				if dimSet {
					_ = ws.SetRowDim(curRow, dim)
				}
			case "c":
				if !inSheetData {
					continue
				}
				inCell = true
				haveCell = false
				cellType = ""
				hasStyle = false
				fPresent, fShared, fRef, fSI, fHasSI = false, false, "", 0, false
				vText.Reset()
				fText.Reset()
				isText.Reset()
				if ref, ok := attr(t, "r"); ok {
					row, col, okRef := cellref.ParseBytes([]byte(ref))
					if !okRef {
						return xlsxerr.Parse(partName, d.InputOffset(), "invalid cell reference %q", ref)
					}
					cellRow, cellCol = row, col
					haveCell = true
				}
				if ty, ok := attr(t, "t"); ok {
					cellType = ty
				}
				if s, ok := attrUint(t, "s"); ok {
					cellStyle = s
					hasStyle = true
				}
			case "v":
				if inCell {
					inV = true
				}
			case "f":
				if inCell {
					inF = true
					fPresent = true
					if ty, _ := attr(t, "t"); ty == "shared" {
						fShared = true
					}
					fRef, _ = attr(t, "ref")
					if si, ok := attrInt(t, "si"); ok {
						fSI = si
						fHasSI = true
					}
				}
			case "is":
				if inCell {
					inIS = true
				}
			case "t":
				if inIS {
					inIST = true
				}
			case "mergeCell":
				if ref, ok := attr(t, "ref"); ok {
					if err := ws.Merge(ref); err != nil {
						return xlsxerr.Wrap(xlsxerr.InvalidFormat, err, "merge %q in %s", ref, partName)
					}
				}
			case "sheetProtection":
				ws.Protection = parseProtection(t)
			case "autoFilter":
				if curDV == nil && curCF == nil {
					ws.AutoFilter, _ = attr(t, "ref")
				}
			case "conditionalFormatting":
				ref, _ := attr(t, "sqref")
				ws.CondFormats = append(ws.CondFormats, worksheet.ConditionalFormat{Ref: ref})
				curCF = &ws.CondFormats[len(ws.CondFormats)-1]
			case "cfRule":
				if curCF != nil {
					rule := worksheet.CFRule{}
					rule.Type, _ = attr(t, "type")
					rule.Operator, _ = attr(t, "operator")
					rule.Priority, _ = attrInt(t, "priority")
					rule.Text, _ = attr(t, "text")
					if dxf, ok := attrInt(t, "dxfId"); ok {
						rule.DxfID = dxf
						rule.HasDxf = true
					}
					curCF.Rules = append(curCF.Rules, rule)
					curRule = &curCF.Rules[len(curCF.Rules)-1]
				}
			case "formula":
				if curRule != nil {
					inCFForml = true
					cfFormula.Reset()
				}
			case "dataValidation":
				dv := worksheet.DataValidation{AllowBlank: attrBool(t, "allowBlank")}
				dv.Ref, _ = attr(t, "sqref")
				dv.Type, _ = attr(t, "type")
				dv.Operator, _ = attr(t, "operator")
				dv.ShowError = attrBool(t, "showErrorMessage")
				dv.ShowInput = attrBool(t, "showInputMessage")
				dv.ErrorTitle, _ = attr(t, "errorTitle")
				dv.ErrorMessage, _ = attr(t, "error")
				dv.PromptTitle, _ = attr(t, "promptTitle")
				dv.PromptMsg, _ = attr(t, "prompt")
				ws.Validations = append(ws.Validations, dv)
				curDV = &ws.Validations[len(ws.Validations)-1]
			case "formula1":
				if curDV != nil {
					dvFormula = 1
				}
			case "formula2":
				if curDV != nil {
					dvFormula = 2
				}
			case "hyperlink":
				ref, ok := attr(t, "ref")
				if !ok {
					continue
				}
				row, col, okRef := cellref.ParseBytes([]byte(ref))
				if !okRef {
					return xlsxerr.Parse(partName, d.InputOffset(), "invalid hyperlink reference %q", ref)
				}
				var h worksheet.Hyperlink
				h.Location, _ = attr(t, "location")
				h.Tooltip, _ = attr(t, "tooltip")
				if rid, ok := attr(t, "id"); ok {
					if rel, found := sheetRels[rid]; found {
						h.Target = rel.Target
					}
				}
				if h.Target == "" && h.Location == "" {
					h.Location = ref
				}
				_ = ws.SetHyperlink(row, col, h)
			case "pageMargins":
				m := worksheet.DefaultPageMargins
				if v, ok := attrFloat(t, "left"); ok {
					m.Left = v
				}
				if v, ok := attrFloat(t, "right"); ok {
					m.Right = v
				}
				if v, ok := attrFloat(t, "top"); ok {
					m.Top = v
				}
				if v, ok := attrFloat(t, "bottom"); ok {
					m.Bottom = v
				}
				if v, ok := attrFloat(t, "header"); ok {
					m.Header = v
				}
				if v, ok := attrFloat(t, "footer"); ok {
					m.Footer = v
				}
				ws.Margins = &m
			case "pageSetup":
				s := &worksheet.PageSetup{}
				s.Orientation, _ = attr(t, "orientation")
				s.PaperSize, _ = attrInt(t, "paperSize")
				s.Scale, _ = attrInt(t, "scale")
				s.FitToWidth, _ = attrInt(t, "fitToWidth")
				s.FitToHeight, _ = attrInt(t, "fitToHeight")
				ws.Setup = s
			case "oddHeader", "oddFooter":
				hfElement = t.Name.Local
				hfText.Reset()
			}
		case xml.CharData:
			switch {
			case inV:
				vText.Write(t)
			case inF:
				fText.Write(t)
			case inIST:
				isText.Write(t)
			case inCFForml && curRule != nil:
				cfFormula.Write(t)
			case dvFormula == 1 && curDV != nil:
				curDV.Formula1 += string(t)
			case dvFormula == 2 && curDV != nil:
				curDV.Formula2 += string(t)
			case hfElement != "":
				hfText.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "sheetData":
				inSheetData = false
			case "v":
				inV = false
			case "f":
				inF = false
			case "is":
				inIS = false
			case "t":
				inIST = false
			case "formula":
				if inCFForml && curRule != nil {
					curRule.Formulas = append(curRule.Formulas, cfFormula.String())
				}
				inCFForml = false
			case "formula1", "formula2":
				dvFormula = 0
			case "conditionalFormatting":
				curCF, curRule = nil, nil
			case "cfRule":
				curRule = nil
			case "dataValidation":
				curDV = nil
			case "oddHeader", "oddFooter":
				if ws.HeaderFooter == nil {
					ws.HeaderFooter = &worksheet.HeaderFooter{}
				}
				if hfElement == "oddHeader" {
					ws.HeaderFooter.OddHeader = hfText.String()
				} else {
					ws.HeaderFooter.OddFooter = hfText.String()
				}
				hfElement = ""
			case "c":
				if inCell && haveCell {
					if err := finishCell(partName, d.InputOffset(), ws, sst, cat, masters,
						cellRow, cellCol, cellType, cellStyle, hasStyle,
						vText.String(), isText.String(),
						fPresent, fShared, fRef, fSI, fHasSI, fText.String()); err != nil {
						return err
					}
				}
				inCell = false
			}
		}
	}
	return nil
}

// finishCell materializes one parsed <c> element into the store.
func finishCell(partName string, off int64, ws *worksheet.Worksheet, sst []string, cat *styles.Catalog,
	masters map[int]sharedMaster,
	row, col uint32, cellType string, styleIdx uint32, hasStyle bool,
	vText, isText string,
	fPresent, fShared bool, fRef string, fSI int, fHasSI bool, fText string) error {

	if hasStyle {
		if !cat.Valid(styles.Handle(styleIdx)) {
			return xlsxerr.New(xlsxerr.InvalidFormat,
				"cell %s references missing style %d in %s", cellref.Format(row, col), styleIdx, partName)
		}
		if err := ws.SetStyle(row, col, styles.Handle(styleIdx)); err != nil {
			return err
		}
	}

	if fPresent {
		text := fText
		if fShared {
			switch {
			case text != "":
				// Master: remember it under its si for the derivatives that
				// follow in document order.
				if fHasSI && fRef != "" {
					masters[fSI] = sharedMaster{row: row, col: col, text: text}
				}
			case fHasSI:
				master, ok := masters[fSI]
				if !ok {
					return xlsxerr.New(xlsxerr.InvalidFormat,
						"shared formula si=%d used at %s before its master in %s", fSI, cellref.Format(row, col), partName)
				}
				translated, err := formula.Translate(master.text, int64(row)-int64(master.row), int64(col)-int64(master.col))
				if err != nil {
					return err
				}
				text = translated
			default:
				return xlsxerr.New(xlsxerr.InvalidFormat,
					"shared formula at %s carries neither text nor si in %s", cellref.Format(row, col), partName)
			}
		}
		cached, hint := cachedValue(cellType, vText)
		if err := ws.SetFormula(row, col, text, cached); err != nil {
			return err
		}
		if hint != "" {
			ws.SetTypeHint(row, col, hint)
		}
		return nil
	}

	switch cellType {
	case "s":
		if vText == "" {
			return ws.SetValue(row, col, worksheet.String(""))
		}
		idx, err := strconv.Atoi(strings.TrimSpace(vText))
		if err != nil || idx < 0 || idx >= len(sst) {
			return xlsxerr.Parse(partName, off, "cell %s: dangling shared string index %q", cellref.Format(row, col), vText)
		}
		return ws.SetValue(row, col, worksheet.String(sst[idx]))
	case "inlineStr":
		return ws.SetValue(row, col, worksheet.String(isText))
	case "str":
		return ws.SetValue(row, col, worksheet.String(vText))
	case "b":
		return ws.SetValue(row, col, worksheet.Bool(strings.TrimSpace(vText) == "1"))
	case "d":
		return ws.SetValue(row, col, worksheet.Date(strings.TrimSpace(vText)))
	case "e":
		if err := ws.SetValue(row, col, worksheet.String(vText)); err != nil {
			return err
		}
		ws.SetTypeHint(row, col, "e")
		return nil
	case "", "n":
		if vText == "" {
			// Style-only cell; the style handle was already recorded.
			return nil
		}
		if f, ok := cellref.ParseFloat([]byte(strings.TrimSpace(vText))); ok {
			return ws.SetValue(row, col, worksheet.Number(f))
		}
		return ws.SetValue(row, col, worksheet.String(vText))
	default:
		// Unknown t= value: preserve as text with the hint recorded.
		if err := ws.SetValue(row, col, worksheet.String(vText)); err != nil {
			return err
		}
		ws.SetTypeHint(row, col, cellType)
		return nil
	}
}

// cachedValue types a formula's cached <v> content.
func cachedValue(cellType, vText string) (worksheet.Value, string) {
	if vText == "" {
		return worksheet.Empty(), ""
	}
	switch cellType {
	case "str":
		return worksheet.String(vText), ""
	case "b":
		return worksheet.Bool(strings.TrimSpace(vText) == "1"), ""
	case "e":
		return worksheet.String(vText), "e"
	default:
		if f, ok := cellref.ParseFloat([]byte(strings.TrimSpace(vText))); ok {
			return worksheet.Number(f), ""
		}
		return worksheet.String(vText), ""
	}
}

func parseProtection(se xml.StartElement) *worksheet.Protection {
	p := &worksheet.Protection{Sheet: true}
	if v, ok := attr(se, "sheet"); ok {
		p.Sheet = v == "1" || v == "true"
	}
	p.Password, _ = attr(se, "password")
	p.SelectLockedCells = attrBool(se, "selectLockedCells")
	p.SelectUnlockedCells = attrBool(se, "selectUnlockedCells")
	p.FormatCells = attrBool(se, "formatCells")
	p.FormatColumns = attrBool(se, "formatColumns")
	p.FormatRows = attrBool(se, "formatRows")
	p.InsertColumns = attrBool(se, "insertColumns")
	p.InsertRows = attrBool(se, "insertRows")
	p.InsertHyperlinks = attrBool(se, "insertHyperlinks")
	p.DeleteColumns = attrBool(se, "deleteColumns")
	p.DeleteRows = attrBool(se, "deleteRows")
	p.Sort = attrBool(se, "sort")
	p.AutoFilter = attrBool(se, "autoFilter")
	p.PivotTables = attrBool(se, "pivotTables")
	p.Objects = attrBool(se, "objects")
	p.Scenarios = attrBool(se, "scenarios")
	return p
}

// ── table part ────────────────────────────────────────────────────────────────

func parseTablePart(data []byte) (worksheet.Table, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	var t worksheet.Table
	t.HeaderRow = true
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return worksheet.Table{}, xmlFail("xl/tables", d.InputOffset(), err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "table":
			t.ID, _ = attrInt(se, "id")
			t.Name, _ = attr(se, "name")
			t.DisplayName, _ = attr(se, "displayName")
			t.Ref, _ = attr(se, "ref")
			if n, ok := attrInt(se, "headerRowCount"); ok {
				t.HeaderRow = n != 0
			}
			if n, ok := attrInt(se, "totalsRowCount"); ok {
				t.TotalsRow = n != 0
			}
		case "tableColumn":
			if name, ok := attr(se, "name"); ok {
				t.Columns = append(t.Columns, name)
			}
		case "tableStyleInfo":
			t.StyleName, _ = attr(se, "name")
		}
	}
	if t.Ref == "" {
		return worksheet.Table{}, xlsxerr.New(xlsxerr.InvalidFormat, "table part missing ref attribute")
	}
	return t, nil
}

// ── comments part ─────────────────────────────────────────────────────────────

func parseCommentsPart(data []byte, ws *worksheet.Worksheet) error {
	d := xml.NewDecoder(bytes.NewReader(data))
	var (
		curRef    string
		inComment bool
		inText    bool
		inT       bool
		text      strings.Builder
	)
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return xmlFail("xl/comments", d.InputOffset(), err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "comment":
				inComment = true
				text.Reset()
				curRef, _ = attr(t, "ref")
			case "text":
				if inComment {
					inText = true
				}
			case "t":
				if inText {
					inT = true
				}
			}
		case xml.CharData:
			if inT {
				text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "comment":
				if curRef != "" {
					if row, col, ok := cellref.ParseBytes([]byte(curRef)); ok {
						_ = ws.SetComment(row, col, text.String())
					}
				}
				inComment, inText, inT = false, false, false
			case "text":
				inText = false
			case "t":
				inT = false
			}
		}
	}
	return nil
}
