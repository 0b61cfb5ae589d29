package estimate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultTag is the fence language that marks an estimate block.
const DefaultTag = "est"

type Status string

const (
	StatusUnestimated Status = "unestimated"
	StatusInvalid     Status = "invalid"
	StatusEstimated   Status = "estimated"
)

// Reason explains a non-estimated classification.
type Reason string

const (
	ReasonNoEstimateBlock         Reason = "no_estimate_block"
	ReasonAmbiguousEstimateBlocks Reason = "ambiguous_estimate_blocks"
	ReasonUnparsableEstimate      Reason = "unparsable_estimate"
)

// Classification is the outcome of reading one card. Value is only
// meaningful when Status is StatusEstimated.
type Classification struct {
	Status Status  `json:"status" enum:"unestimated,invalid,estimated"`
	Value  float64 `json:"value"`
	Reason Reason  `json:"reason,omitempty"`
	Blocks int     `json:"blocks"`
	Detail string  `json:"detail,omitempty"`
}

func Unestimated() Classification {
	return Classification{Status: StatusUnestimated, Reason: ReasonNoEstimateBlock}
}

func Estimated(v float64) Classification {
	return Classification{Status: StatusEstimated, Value: v, Blocks: 1}
}

// Classifier finds estimate blocks in card content. The zero value is not
// usable; build one with NewClassifier.
type Classifier struct {
	tag    string
	marker string
	block  *regexp.Regexp
}

// NewClassifier compiles the block pattern for the given fence tag and
// payload marker. Empty values fall back to the defaults.
func NewClassifier(tag, marker string) *Classifier {
	if tag == "" {
		tag = DefaultTag
	}
	if marker == "" {
		marker = DefaultMarker
	}
	pattern := fmt.Sprintf("(?ms)^[ \\t]*```[ \\t]*%s[ \\t]*\\n(.*?)^[ \\t]*```[ \\t]*$", regexp.QuoteMeta(tag))
	return &Classifier{
		tag:    tag,
		marker: marker,
		block:  regexp.MustCompile(pattern),
	}
}

// Blocks returns the payload of every estimate block in content, in order.
// CRLF line endings are read as LF.
func (c *Classifier) Blocks(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	matches := c.block.FindAllStringSubmatch(content, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// Classify reads a card's content. It never fails: every problem is
// reported as an Invalid or Unestimated classification.
func (c *Classifier) Classify(content string) Classification {
	blocks := c.Blocks(content)
	switch len(blocks) {
	case 0:
		return Unestimated()
	case 1:
		v, err := Parse(blocks[0], c.marker)
		if err != nil {
			cl := Classification{Status: StatusInvalid, Reason: ReasonUnparsableEstimate, Blocks: 1}
			switch {
			case errors.Is(err, ErrNegative):
				cl.Detail = ErrNegative.Error()
			default:
				cl.Detail = ErrNotNumeric.Error()
			}
			return cl
		}
		return Estimated(v)
	default:
		return Classification{
			Status: StatusInvalid,
			Reason: ReasonAmbiguousEstimateBlocks,
			Blocks: len(blocks),
			Detail: fmt.Sprintf("%d estimate blocks", len(blocks)),
		}
	}
}
