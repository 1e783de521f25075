package search

import (
	"strconv"
	"strings"
)

const DefaultLimit = 20

// Query is the parsed form of a search box input.
// Example: invoice march --from alice --limit 5
type Query struct {
	RawInput string
	Terms    string
	From     string
	Limit    int
}

// NewQuery extracts command-line style flags from input. Unknown flags are
// dropped together with their value; a leading /find is ignored.
func NewQuery(input string) Query {
	query := Query{RawInput: input, Limit: DefaultLimit}

	parts := strings.Fields(input)
	var terms []string
	for i := 0; i < len(parts); i++ {
		part := parts[i]
		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			value := parts[i+1]
			switch strings.TrimPrefix(part, "--") {
			case "from":
				query.From = strings.TrimPrefix(value, "@")
			case "limit":
				if limit, err := strconv.Atoi(value); err == nil && limit > 0 {
					query.Limit = limit
				}
			}
			i++
			continue
		}
		if !strings.HasPrefix(part, "/") {
			terms = append(terms, part)
		}
	}
	query.Terms = strings.Join(terms, " ")
	return query
}

func (q Query) IsEmpty() bool {
	return q.Terms == "" && q.From == ""
}
