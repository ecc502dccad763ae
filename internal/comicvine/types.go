package comicvine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record is the subset of a ComicVine resource the importer reads. The same
// shape covers publishers, volumes, issues, characters and teams; fields a
// resource does not carry stay zero.
type Record struct {
	ID           FlexInt `json:"id"`
	Name         string  `json:"name"`
	APIDetailURL string  `json:"api_detail_url"`
	ResourceType string  `json:"resource_type"`
	Deck         string  `json:"deck"`
	Description  string  `json:"description"`

	// publisher
	Location string `json:"location"`

	// volume
	StartYear       FlexInt  `json:"start_year"`
	EndYear         FlexInt  `json:"end_year"`
	LocationCredits []Record `json:"location_credits"`
	Publisher       *Record  `json:"publisher"`

	// issue
	IssueNumber      FlexString `json:"issue_number"`
	CoverDate        string     `json:"cover_date"`
	Volume           *Record    `json:"volume"`
	CharacterCredits []Record   `json:"character_credits"`
	TeamCredits      []Record   `json:"team_credits"`

	// character / team
	RealName string      `json:"real_name"`
	Aliases  FlexStrings `json:"aliases"`
	Universe *Record     `json:"universe"`
}

// FlexInt decodes numbers that ComicVine sends either as JSON numbers or as
// numeric strings ("1989"). null, "" and unparsable strings decode to 0.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("decode flex int: %w", err)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = FlexInt(n)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decode flex int: %w", err)
	}
	v, err := n.Int64()
	if err != nil {
		fv, ferr := n.Float64()
		if ferr != nil {
			return fmt.Errorf("decode flex int: %w", err)
		}
		v = int64(fv)
	}
	*f = FlexInt(v)
	return nil
}

func (f FlexInt) Int64() int64 { return int64(f) }

// Ptr returns nil for the zero value.
func (f FlexInt) Ptr() *int64 {
	if f == 0 {
		return nil
	}
	v := int64(f)
	return &v
}

func (f FlexInt) IntPtr() *int {
	if f == 0 {
		return nil
	}
	v := int(f)
	return &v
}

// FlexString accepts a string or a number ("12" and 12 both decode to "12").
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("decode flex string: %w", err)
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(string(b))
	return nil
}

// FlexStrings accepts a single string or an array of strings. The raw entries
// are kept; splitting into individual aliases is the resolver's job.
type FlexStrings []string

func (f *FlexStrings) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = nil
		return nil
	}
	if b[0] == '[' {
		var raw []any
		if err := json.Unmarshal(b, &raw); err != nil {
			return fmt.Errorf("decode aliases: %w", err)
		}
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if v == nil {
				continue
			}
			out = append(out, fmt.Sprint(v))
		}
		*f = out
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("decode aliases: %w", err)
	}
	if s == "" {
		*f = nil
		return nil
	}
	*f = FlexStrings{s}
	return nil
}

// Label is the display text for an import result row.
func (r *Record) Label() string {
	if r.Name != "" {
		return r.Name
	}
	if r.IssueNumber != "" {
		return "#" + string(r.IssueNumber)
	}
	return ""
}
