package imperilment

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// TokenMetaName is the name of the meta element rails renders the anti-forgery token into.
const TokenMetaName = "csrf-token"

var tokenMatcher = cascadia.MustCompile(fmt.Sprintf("meta[name=%q]", TokenMetaName))

// ExtractToken returns the anti-forgery token embedded in a served page.
func ExtractToken(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: parse html: %w", ErrTokenNotFound, err)
	}
	meta := doc.FindMatcher(tokenMatcher).First()
	if meta.Length() == 0 {
		return "", fmt.Errorf("%w: no meta[name=%s] element", ErrTokenNotFound, TokenMetaName)
	}
	token := strings.TrimSpace(meta.AttrOr("content", ""))
	if token == "" {
		return "", fmt.Errorf("%w: meta[name=%s] has no content", ErrTokenNotFound, TokenMetaName)
	}
	return token, nil
}
