// Package cfgi lee el índice fear & greed de Solana (intervalo 15m) de cfgi.io.
// La página no tiene API: el valor va embebido en el script del gráfico.
package cfgi

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/alejandrodnm/pulsesurfer/internal/domain"
	"github.com/go-resty/resty/v2"
)

const DefaultURL = "https://cfgi.io/solana-fear-greed-index/15m"

var seriesRe = regexp.MustCompile(`series:\s*\[(\d+)\]`)

// Source es el scraper de cfgi.io.
type Source struct {
	client *resty.Client
	url    string
}

// NewSource crea un Source contra url (DefaultURL si está vacío).
func NewSource(url string, timeout time.Duration) *Source {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(time.Second)
	client.SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	return &Source{client: client, url: url}
}

// FetchIndex devuelve el índice actual. Cualquier fallo (red, HTML, valor fuera
// de rango) devuelve domain.NeutralIndex y se loguea.
func (s *Source) FetchIndex(ctx context.Context) int {
	idx, err := s.fetch(ctx)
	if err != nil {
		slog.Warn("cfgi: using neutral index", "err", err)
		return domain.NeutralIndex
	}
	slog.Debug("cfgi: index", "value", idx)
	return idx
}

func (s *Source) fetch(ctx context.Context) (int, error) {
	resp, err := s.client.R().SetContext(ctx).Get(s.url)
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", s.url, err)
	}
	if resp.StatusCode() != 200 {
		return 0, fmt.Errorf("HTTP error %d when fetching index page", resp.StatusCode())
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return 0, fmt.Errorf("parse html: %w", err)
	}
	return parseIndex(doc)
}

func parseIndex(doc *goquery.Document) (int, error) {
	var match []string
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		if !strings.Contains(text, "series:") {
			return true
		}
		match = seriesRe.FindStringSubmatch(text)
		return match == nil
	})
	if match == nil {
		return 0, fmt.Errorf("series value not found in page")
	}
	v, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, fmt.Errorf("parse series %q: %w", match[1], err)
	}
	if v < 0 || v > 100 {
		return 0, fmt.Errorf("index %d out of range", v)
	}
	return v, nil
}
