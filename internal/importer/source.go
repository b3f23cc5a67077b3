package importer

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-intel/internal/resilience"
)

// Fetcher resolves an extract location to a local file. Local paths are
// returned as-is; http(s) and ftp URLs are downloaded into TempDir.
type Fetcher struct {
	TempDir string
	Timeout time.Duration
	Retry   resilience.RetryConfig

	http    *http.Client
	limiter *rate.Limiter
}

// NewFetcher returns a Fetcher with the given download timeout. A zero
// timeout defaults to 30s.
func NewFetcher(tempDir string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		TempDir: tempDir,
		Timeout: timeout,
		Retry:   resilience.FromRetryConfig(3, 1000),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(1), 1),
	}
}

// Fetch returns the local path of src and a cleanup func that removes any
// downloaded copy.
func (f *Fetcher) Fetch(ctx context.Context, src string) (string, func(), error) {
	noop := func() {}
	u, err := url.Parse(src)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain path (a single-letter scheme is a Windows drive).
		if _, statErr := os.Stat(src); statErr != nil {
			return "", noop, eris.Wrapf(statErr, "importer: open %s", src)
		}
		return src, noop, nil
	}

	var download func(ctx context.Context, w io.Writer) error
	switch u.Scheme {
	case "file":
		return f.Fetch(ctx, u.Path)
	case "http", "https":
		download = func(ctx context.Context, w io.Writer) error { return f.httpGet(ctx, src, w) }
	case "ftp":
		download = func(ctx context.Context, w io.Writer) error { return f.ftpRetr(ctx, src, w) }
	default:
		return "", noop, eris.Errorf("importer: unsupported source scheme %q", u.Scheme)
	}

	file, err := os.CreateTemp(f.TempDir, "extract-*"+path.Ext(u.Path))
	if err != nil {
		return "", noop, eris.Wrap(err, "importer: create temp file")
	}
	cleanup := func() { os.Remove(file.Name()) } //nolint:errcheck

	err = resilience.Do(ctx, f.Retry, func(ctx context.Context) error {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if err := file.Truncate(0); err != nil {
			return err
		}
		return download(ctx, file)
	})
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		return "", noop, eris.Wrapf(err, "importer: download %s", redact(u))
	}
	return file.Name(), cleanup, nil
}

func (f *Fetcher) httpGet(ctx context.Context, rawURL string, w io.Writer) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "importer: rate limit wait")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return eris.Wrap(err, "importer: create request")
	}
	req.Header.Set("User-Agent", "lead-intel-importer/1.0")

	resp, err := f.http.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "importer: http get"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return resilience.StatusError("importer", resp.StatusCode)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "importer: read body"), 0)
	}
	return nil
}

func (f *Fetcher) ftpRetr(ctx context.Context, rawURL string, w io.Writer) error {
	host, p, user, pass, err := parseFTPURL(rawURL)
	if err != nil {
		return err
	}
	zap.L().Debug("importer: ftp connecting", zap.String("host", host), zap.String("path", p))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "importer: ftp dial"), 0)
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(user, pass); err != nil {
		return eris.Wrap(err, "importer: ftp login")
	}
	resp, err := conn.Retr(p)
	if err != nil {
		return eris.Wrap(err, "importer: ftp retrieve")
	}
	defer resp.Close() //nolint:errcheck

	if _, err := io.Copy(w, resp); err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "importer: ftp read"), 0)
	}
	return nil
}

// parseFTPURL splits an ftp URL into host:port, path and credentials.
// Missing credentials fall back to anonymous login.
func parseFTPURL(rawURL string) (host, p, user, pass string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", "", "", eris.Wrap(err, "importer: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", "", "", eris.Errorf("importer: expected ftp scheme, got %q", u.Scheme)
	}
	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}
	p = u.Path
	if p == "" || p == "/" {
		return "", "", "", "", eris.New("importer: empty path in ftp url")
	}
	user, pass = "anonymous", "anonymous@"
	if u.User != nil && u.User.Username() != "" {
		user = u.User.Username()
		pass, _ = u.User.Password()
	}
	return host, p, user, pass, nil
}

// redact drops credentials from u for logs and errors.
func redact(u *url.URL) string {
	c := *u
	c.User = nil
	return c.String()
}

// formatOf picks the parser from the file extension.
func formatOf(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return "xlsx"
	default:
		return "csv"
	}
}
