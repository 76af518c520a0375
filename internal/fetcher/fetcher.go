package fetcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"document-chat/internal/config"
	"document-chat/internal/helper"
)

const (
	LogFileName   = "download_log.txt"
	maxNameLength = 100
	invalidChars  = `<>:"/\|?*`
)

// Target is one document to download.
type Target struct {
	Name string
	URL  string
}

type Result struct {
	Index    int
	Target   Target
	URL      string
	Path     string
	Attempts int
	Err      error
}

func (r Result) OK() bool {
	return r.Err == nil
}

type Fetcher struct {
	cfg          config.FetchConfig
	outDir       string
	client       *http.Client
	initialDelay time.Duration
	rnd          *rand.Rand
	observe      func(Result)
}

type Option func(*Fetcher)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithRetryInterval sets the first retry wait; later waits double.
func WithRetryInterval(d time.Duration) Option {
	return func(f *Fetcher) { f.initialDelay = d }
}

func WithObserver(o func(Result)) Option {
	return func(f *Fetcher) { f.observe = o }
}

func New(cfg *config.FetchConfig, outDir string, opts ...Option) *Fetcher {
	f := &Fetcher{
		cfg:          *cfg,
		outDir:       outDir,
		client:       &http.Client{Timeout: cfg.Timeout},
		initialDelay: time.Second,
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchAll downloads every target in order, pausing a random delay between
// requests, and writes a log of the results next to the files.
func (f *Fetcher) FetchAll(ctx context.Context, targets []Target) ([]Result, error) {
	if err := helper.CreateFolder(f.outDir); err != nil {
		return nil, err
	}
	logPath := filepath.Join(f.outDir, LogFileName)
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create download log: %w", err)
	}
	defer logFile.Close()

	w := bufio.NewWriter(logFile)
	defer w.Flush()
	fmt.Fprintf(w, "Download log, %d targets\n", len(targets))
	fmt.Fprintf(w, "Started at: %s\n\n", time.Now().Format(time.DateTime))

	results := make([]Result, 0, len(targets))
	for i, t := range targets {
		if strings.TrimSpace(t.URL) == "" {
			fmt.Fprintf(w, "Skipping empty URL at index %d\n", i)
			continue
		}
		if i > 0 {
			if err := f.pause(ctx); err != nil {
				return results, err
			}
		}

		log.Info().Int("n", i+1).Int("total", len(targets)).Str("url", t.URL).Msg("Downloading")
		res := f.Fetch(ctx, i, t)
		results = append(results, res)
		if f.observe != nil {
			f.observe(res)
		}

		status := "Success"
		if !res.OK() {
			status = "Failed (" + res.Err.Error() + ")"
		}
		fmt.Fprintf(w, "(%d/%d) %s URL: %s\n", i+1, len(targets), t.Name, res.URL)
		fmt.Fprintf(w, "    Result: %s\n", status)
		fmt.Fprintf(w, "    Path: %s\n\n", res.Path)
	}

	abs, _ := filepath.Abs(f.outDir)
	fmt.Fprintf(w, "\nDownload process completed at: %s\n", time.Now().Format(time.DateTime))
	fmt.Fprintf(w, "Files saved to: %s\n", abs)
	return results, nil
}

// Fetch downloads one target, retrying with exponential backoff.
func (f *Fetcher) Fetch(ctx context.Context, index int, t Target) Result {
	res := Result{Index: index, Target: t, URL: NormalizeURL(t.URL)}
	res.Path = filepath.Join(f.outDir, FileName(res.URL, index))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.initialDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	retries := uint64(0)
	if f.cfg.MaxRetries > 1 {
		retries = uint64(f.cfg.MaxRetries - 1)
	}

	op := func() error {
		res.Attempts++
		return f.download(ctx, res.URL, res.Path)
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("url", res.URL).Int("attempt", res.Attempts).Dur("wait", wait).Msg("Retrying download")
	}
	res.Err = backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx), notify)

	if res.Err != nil {
		log.Error().Err(res.Err).Str("url", res.URL).Msg("Failed to download")
	} else {
		log.Info().Str("url", res.URL).Str("path", res.Path).Msg("Successfully downloaded")
	}
	return res
}

func (f *Fetcher) download(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status code %d", resp.StatusCode)
	}

	if err := helper.CreateFolder(filepath.Dir(dest)); err != nil {
		return backoff.Permanent(err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return backoff.Permanent(err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (f *Fetcher) pause(ctx context.Context) error {
	d := f.cfg.MinDelay
	if spread := f.cfg.MaxDelay - f.cfg.MinDelay; spread > 0 {
		d += time.Duration(f.rnd.Int63n(int64(spread)))
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NormalizeURL trims the URL and adds http:// when no scheme is given.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.HasPrefix(raw, "http") {
		raw = "http://" + raw
	}
	return raw
}

// FileName derives a local file name from the URL path, falling back to
// <domain>_<index>.html for URLs without one.
func FileName(rawURL string, index int) string {
	var name, host string
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
		if u.Path != "" && !strings.HasSuffix(u.Path, "/") {
			name = path.Base(u.Path)
		}
	}
	if name == "" || name == "/" || name == "." {
		domain := strings.ReplaceAll(host, "www.", "")
		domain = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return '_'
		}, domain)
		name = fmt.Sprintf("%s_%d.html", domain, index)
	}

	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidChars, r) {
			return '_'
		}
		return r
	}, name)

	if r := []rune(name); len(r) > maxNameLength {
		ext := []rune(filepath.Ext(name))
		if len(ext) > 0 && len(ext) < maxNameLength {
			base := r[:len(r)-len(ext)]
			name = string(base[:min(len(base), maxNameLength-5)]) + string(ext)
		} else {
			name = string(r[:maxNameLength])
		}
	}

	if strings.Contains(strings.ToLower(rawURL), ".pdf") && !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

// ReadTargets loads targets from an XLSX workbook (first sheet, header row
// naming the columns) or from a text file with one "name,url" or "url" per line.
func ReadTargets(filePath, nameColumn, urlColumn string) ([]Target, error) {
	if strings.EqualFold(filepath.Ext(filePath), ".xlsx") {
		return readWorkbook(filePath, nameColumn, urlColumn)
	}
	return readList(filePath)
}

func readWorkbook(filePath, nameColumn, urlColumn string) ([]Target, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	nameIdx, urlIdx := -1, -1
	for i, h := range rows[0] {
		switch strings.TrimSpace(h) {
		case nameColumn:
			nameIdx = i
		case urlColumn:
			urlIdx = i
		}
	}
	if urlIdx < 0 {
		return nil, fmt.Errorf("column %q not found, available columns: %s", urlColumn, strings.Join(rows[0], ", "))
	}

	var targets []Target
	for _, row := range rows[1:] {
		if urlIdx >= len(row) || strings.TrimSpace(row[urlIdx]) == "" {
			continue
		}
		t := Target{URL: strings.TrimSpace(row[urlIdx])}
		if nameIdx >= 0 && nameIdx < len(row) {
			t.Name = strings.TrimSpace(row[nameIdx])
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func readList(filePath string) ([]Target, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var targets []Target
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// a name never contains a slash, a URL before the comma does
		if name, u, ok := strings.Cut(line, ","); ok && !strings.Contains(name, "/") {
			targets = append(targets, Target{Name: strings.TrimSpace(name), URL: strings.TrimSpace(u)})
			continue
		}
		targets = append(targets, Target{URL: line})
	}
	return targets, scanner.Err()
}
