package extract

import (
	"bytes"
	"fmt"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/sirupsen/logrus"

	"github.com/sriram-pr/article-scraper/pkg/models"
	"github.com/sriram-pr/article-scraper/pkg/utils"
)

// readabilityStrategy is the content-scoring pass of last resort for pages
// whose markup defeats the paragraph heuristics. Off by default.
type readabilityStrategy struct {
	log *logrus.Entry
}

func (s *readabilityStrategy) name() string { return "readability" }

func (s *readabilityStrategy) extract(page *pageContext) (*models.Document, error) {
	article, err := readability.FromReader(bytes.NewReader(page.rawHTML), page.url)
	if err != nil {
		return nil, fmt.Errorf("%w: readability parse failed for '%s': %v", utils.ErrParsing, page.url, err)
	}

	body := strings.TrimSpace(article.TextContent)
	if body == "" {
		return nil, fmt.Errorf("%w: readability found no content in '%s'", utils.ErrMissingRequiredField, page.url)
	}

	return &models.Document{
		Title:       strings.TrimSpace(article.Title),
		Author:      strings.TrimSpace(article.Byline),
		BodyText:    body,
		ContentHTML: article.Content,
		Method:      models.MethodReadability,
	}, nil
}
