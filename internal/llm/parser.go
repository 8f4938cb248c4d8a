package llm

import (
	"fmt"
	"strconv"
	"strings"
)

// parseChoice extracts the chosen category, confidence and reasoning from a
// model response in the CATEGORY/CONFIDENCE/REASONING line format. Parsing is
// lenient about common formatting slips (percentages, stray characters) but
// a response without a category line is an error.
func parseChoice(content string) (ChoiceResponse, error) {
	var resp ChoiceResponse

	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "CATEGORY:"):
			resp.CategoryID = strings.TrimSpace(strings.TrimPrefix(line, "CATEGORY:"))
		case strings.HasPrefix(line, "CONFIDENCE:"):
			resp.Confidence = parseScore(strings.TrimSpace(strings.TrimPrefix(line, "CONFIDENCE:")))
		case strings.HasPrefix(line, "REASONING:"):
			resp.Reasoning = strings.TrimSpace(strings.TrimPrefix(line, "REASONING:"))
		}
	}

	if resp.CategoryID == "" {
		return ChoiceResponse{}, fmt.Errorf("no category found in response")
	}

	return resp, nil
}

// parseScore converts a score string to a float in [0,1], recovering from
// percentage notation and stray characters. Unparseable scores come back as
// zero.
func parseScore(raw string) float64 {
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		if strings.HasSuffix(raw, "%") {
			percentStr := strings.TrimSpace(strings.TrimSuffix(raw, "%"))
			if percentVal, parseErr := strconv.ParseFloat(percentStr, 64); parseErr == nil {
				score = percentVal / 100.0
			} else {
				return 0
			}
		} else {
			// Strip any non-numeric characters except decimal point
			clean := strings.Map(func(r rune) rune {
				if (r >= '0' && r <= '9') || r == '.' {
					return r
				}
				return -1
			}, raw)

			score, err = strconv.ParseFloat(clean, 64)
			if err != nil {
				return 0
			}
		}
	}

	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}
