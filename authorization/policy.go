package authorization

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Grouping makes Subject a member of Group.
type Grouping struct {
	Subject string
	Group   string
}

// Policy is the content of a policy file.
type Policy struct {
	Rules     []Rule
	Groupings []Grouping
}

type UnknownPolicyTypeError struct {
	Line       int
	PolicyType string
}

func (err UnknownPolicyTypeError) Error() string {
	return fmt.Sprintf("line %d: unknown policy type %q", err.Line, err.PolicyType)
}

type MalformedPolicyError struct {
	Line   int
	Reason string
}

func (err MalformedPolicyError) Error() string {
	return fmt.Sprintf("line %d: %s", err.Line, err.Reason)
}

// ParsePolicy reads a policy file made of lines like
//
//	p, subject, domain, object, action
//	g, subject, group
//
// Blank lines and lines starting with # are skipped. An object of "-" is read
// as no object.
func ParsePolicy(content string) (*Policy, error) {
	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	var policy Policy

	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return nil, fmt.Errorf("failed to read policy: %w", err)
		}

		line, _ := reader.FieldPos(0)

		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}

		if len(record) == 0 || record[0] == "" {
			continue
		}

		switch record[0] {
		case "p":
			if len(record) != 5 {
				return nil, &MalformedPolicyError{Line: line, Reason: "rule needs subject, domain, object and action"}
			}

			object := record[3]
			if object == "-" {
				object = ""
			}

			policy.Rules = append(policy.Rules, Rule{
				Subject: record[1],
				Domain:  record[2],
				Object:  object,
				Action:  record[4],
			})
		case "g":
			if len(record) != 3 {
				return nil, &MalformedPolicyError{Line: line, Reason: "grouping needs subject and group"}
			}

			policy.Groupings = append(policy.Groupings, Grouping{Subject: record[1], Group: record[2]})
		default:
			return nil, &UnknownPolicyTypeError{Line: line, PolicyType: record[0]}
		}
	}

	return &policy, nil
}
