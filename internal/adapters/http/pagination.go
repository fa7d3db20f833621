package http

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Safe-place listing bounds.
const (
	defaultPageLimit = 100
	maxPageLimit     = 200
)

// PaginatedResponse wraps one page of a list with its position.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// Pagination is an offset window over a list of Total items.
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// pageParams reads offset and limit from the query. Out-of-range values are
// clamped rather than rejected so that hand-edited links keep working.
func pageParams(c *fiber.Ctx) (offset, limit int) {
	offset = c.QueryInt("offset", 0)
	limit = c.QueryInt("limit", defaultPageLimit)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > maxPageLimit {
		limit = defaultPageLimit
	}
	return offset, limit
}

// sendPage writes the page body and its RFC 8288 Link header.
func sendPage(c *fiber.Ctx, data interface{}, p Pagination) error {
	link := func(offset int, rel string) string {
		return fmt.Sprintf(`<%s?offset=%d&limit=%d>; rel="%s"`, c.Path(), offset, p.Limit, rel)
	}

	links := []string{link(0, "first")}
	if p.Offset > 0 {
		links = append(links, link(max(p.Offset-p.Limit, 0), "prev"))
	}
	if p.Offset+p.Limit < p.Total {
		links = append(links, link(p.Offset+p.Limit, "next"))
	}
	if last := max(p.Total-p.Limit, 0); last != 0 {
		links = append(links, link(last, "last"))
	}

	c.Set(fiber.HeaderLink, strings.Join(links, ", "))
	return c.JSON(PaginatedResponse{Data: data, Pagination: p})
}
