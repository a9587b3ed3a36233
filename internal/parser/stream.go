package parser

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"openapi-mcp-server/internal/config"
	srverrors "openapi-mcp-server/internal/errors"
	"openapi-mcp-server/internal/logging"
)

// Metrics aggregates what the parser observed in one file.
type Metrics struct {
	EndpointsFound       int           `json:"endpoints_found"`
	SchemasFound         int           `json:"schemas_found"`
	SecuritySchemesFound int           `json:"security_schemes_found"`
	ExtensionsFound      int           `json:"extensions_found"`
	FileSize             int64         `json:"file_size"`
	ParseDuration        time.Duration `json:"parse_duration"`
	MemoryPeak           uint64        `json:"memory_peak_bytes"`
}

// Progress is one progress checkpoint during a parse.
type Progress struct {
	BytesRead  int64   `json:"bytes_read"`
	TotalBytes int64   `json:"total_bytes"`
	Percent    float64 `json:"percent"`
}

// ProgressFunc observes parse progress. Called from the parsing goroutine.
type ProgressFunc func(Progress)

// StreamParser reads a specification file token by token, keeping memory
// bounded to a constant factor over the file size.
type StreamParser struct {
	cfg        config.ParserConfig
	logger     logging.Logger
	onProgress ProgressFunc
}

// NewStreamParser creates a parser with the given bounds.
func NewStreamParser(cfg config.ParserConfig, logger logging.Logger) *StreamParser {
	if logger == nil {
		logger = logging.NoOp()
	}
	return &StreamParser{cfg: cfg, logger: logger.WithComponent("parser")}
}

// OnProgress registers a progress observer.
func (p *StreamParser) OnProgress(fn ProgressFunc) { p.onProgress = fn }

// ParseFile reads and decodes path, returning the ordered document and
// aggregate metrics. The context is observed at progress checkpoints.
func (p *StreamParser) ParseFile(ctx context.Context, path string) (*Object, *Metrics, error) {
	start := time.Now()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, srverrors.Wrap(srverrors.CodeFileNotFound, fmt.Sprintf("specification file %q does not exist", path), err)
		}
		return nil, nil, srverrors.Wrap(srverrors.CodeFileNotFound, "cannot stat specification file", err)
	}
	if p.cfg.MaxFileSize > 0 && info.Size() > p.cfg.MaxFileSize {
		return nil, nil, srverrors.New(srverrors.CodeFileTooLarge,
			fmt.Sprintf("file is %d bytes, limit is %d", info.Size(), p.cfg.MaxFileSize)).
			WithDetail("file_size", info.Size()).
			WithDetail("max_file_size", p.cfg.MaxFileSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, srverrors.Wrap(srverrors.CodeFileNotFound, "cannot open specification file", err)
	}
	defer func() { _ = f.Close() }()

	tracker := newProgressTracker(ctx, info.Size(), p.cfg.ProgressInterval, p.cfg.MemoryCeiling, p.onProgress)
	reader := &trackingReader{r: bufio.NewReaderSize(f, p.cfg.ChunkSize), tracker: tracker}

	dec := json.NewDecoder(reader)
	dec.UseNumber()

	doc, err := decodeValue(dec)
	if err != nil {
		if checkErr := tracker.err; checkErr != nil {
			return nil, nil, checkErr
		}
		line, col := tracker.position()
		return nil, nil, srverrors.Wrap(srverrors.CodeInvalidJSON,
			fmt.Sprintf("invalid JSON near line %d, column %d", line, col), err).
			WithDetail("line", line).
			WithDetail("column", col)
	}
	// Anything after the top-level value is extra data.
	if _, trailing := dec.Token(); trailing == nil {
		line, col := tracker.position()
		return nil, nil, srverrors.New(srverrors.CodeInvalidJSON,
			fmt.Sprintf("extra data after top-level value at line %d, column %d", line, col)).
			WithDetail("line", line).
			WithDetail("column", col)
	}

	root, ok := doc.(*Object)
	if !ok {
		return nil, nil, srverrors.New(srverrors.CodeStructureValidation, "specification root must be a JSON object")
	}

	metrics := p.collectMetrics(root, info.Size(), start, tracker.memoryPeak)
	tracker.emit(true)

	p.logger.InfoContext(ctx, "specification parsed",
		"path", path,
		"file_size", metrics.FileSize,
		"endpoints", metrics.EndpointsFound,
		"schemas", metrics.SchemasFound,
		"duration_ms", metrics.ParseDuration.Milliseconds())

	return root, metrics, nil
}

// decodeValue builds the ordered structure from the decoder token stream.
func decodeValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (interface{}, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string: %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return obj, nil
		case '[':
			var arr []interface{}
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			if arr == nil {
				arr = []interface{}{}
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	default:
		return tok, nil
	}
}

func (p *StreamParser) collectMetrics(root *Object, size int64, start time.Time, memPeak uint64) *Metrics {
	m := &Metrics{
		FileSize:        size,
		ExtensionsFound: CountExtensions(root),
		MemoryPeak:      memPeak,
	}
	if paths, ok := root.GetObject("paths"); ok {
		for _, pathKey := range paths.Keys() {
			item, ok := paths.GetObject(pathKey)
			if !ok {
				continue
			}
			for _, method := range item.Keys() {
				switch strings.ToLower(method) {
				case "get", "post", "put", "delete", "patch", "head", "options", "trace":
					m.EndpointsFound++
				}
			}
		}
	}
	if components, ok := root.GetObject("components"); ok {
		if schemas, ok := components.GetObject("schemas"); ok {
			m.SchemasFound = schemas.Len()
		}
		if schemes, ok := components.GetObject("securitySchemes"); ok {
			m.SecuritySchemesFound = schemes.Len()
		}
	}
	// Swagger 2.0 keeps these at the top level.
	if defs, ok := root.GetObject("definitions"); ok {
		m.SchemasFound += defs.Len()
	}
	if defs, ok := root.GetObject("securityDefinitions"); ok {
		m.SecuritySchemesFound += defs.Len()
	}
	m.ParseDuration = time.Since(start)
	return m
}

// progressTracker emits progress at byte intervals (or at least once per
// second) and samples memory at each checkpoint.
type progressTracker struct {
	ctx        context.Context
	total      int64
	interval   int64
	ceiling    int64
	onProgress ProgressFunc

	read       int64
	lastEmit   int64
	lastEmitAt time.Time
	line       int
	col        int
	memoryPeak uint64
	err        error
}

func newProgressTracker(ctx context.Context, total, interval, ceiling int64, fn ProgressFunc) *progressTracker {
	if interval <= 0 {
		interval = 1024 * 1024
	}
	return &progressTracker{
		ctx:        ctx,
		total:      total,
		interval:   interval,
		ceiling:    ceiling,
		onProgress: fn,
		line:       1,
		col:        1,
		lastEmitAt: time.Now(),
	}
}

func (t *progressTracker) advance(chunk []byte) error {
	t.read += int64(len(chunk))
	for _, b := range chunk {
		if b == '\n' {
			t.line++
			t.col = 1
		} else {
			t.col++
		}
	}

	if t.read-t.lastEmit >= t.interval || time.Since(t.lastEmitAt) >= time.Second {
		if err := t.checkpoint(); err != nil {
			t.err = err
			return err
		}
	}
	return nil
}

func (t *progressTracker) checkpoint() error {
	if t.ctx != nil {
		if err := t.ctx.Err(); err != nil {
			return srverrors.Wrap(srverrors.CodeTimeout, "parse cancelled", err)
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.HeapAlloc > t.memoryPeak {
		t.memoryPeak = ms.HeapAlloc
	}
	if t.ceiling > 0 && ms.HeapAlloc > uint64(t.ceiling) {
		return srverrors.New(srverrors.CodeMemoryLimitExceeded,
			fmt.Sprintf("heap usage %d exceeds ceiling %d", ms.HeapAlloc, t.ceiling)).
			WithDetail("heap_bytes", ms.HeapAlloc).
			WithDetail("ceiling_bytes", t.ceiling)
	}

	t.emit(false)
	return nil
}

func (t *progressTracker) emit(final bool) {
	if t.onProgress == nil {
		return
	}
	if !final && t.read == t.lastEmit {
		return
	}
	t.lastEmit = t.read
	t.lastEmitAt = time.Now()
	pct := 0.0
	if t.total > 0 {
		pct = float64(t.read) / float64(t.total) * 100
	}
	t.onProgress(Progress{BytesRead: t.read, TotalBytes: t.total, Percent: pct})
}

func (t *progressTracker) position() (line, col int) { return t.line, t.col }

// trackingReader feeds the tracker as bytes flow to the decoder.
type trackingReader struct {
	r       io.Reader
	tracker *progressTracker
}

func (tr *trackingReader) Read(p []byte) (int, error) {
	n, err := tr.r.Read(p)
	if n > 0 {
		if terr := tr.tracker.advance(p[:n]); terr != nil {
			return n, terr
		}
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return n, err
	}
	return n, err
}
