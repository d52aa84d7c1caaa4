// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"regexp"
	"strings"
)

var (
	docParamTag = regexp.MustCompile(`^\s*\\param\[\s*(in|out|in\s*,\s*out)\s*\]\s+([A-Za-z][A-Za-z0-9_]*)`)
	docOldArg   = regexp.MustCompile(`^\s{0,6}([A-Za-z][A-Za-z0-9_]*)\s+\((input|output|input/output|input or output|workspace|workspace/output|output/workspace|input/workspace)\)(.*)$`)
	docStop     = regexp.MustCompile(`^\s*(\\author|\\ingroup|\\date|\\par\b|\\param\b|\\see|={5,}|Further Details)`)
	docSkip     = regexp.MustCompile(`^\s*\\(verbatim|endverbatim)\s*$`)
	docDim      = regexp.MustCompile(`(?i)\bdimension\s*\(`)
	docMinusOne = regexp.MustCompile(`=\s*-\s*1\b`)
)

// paramDoc is what the documentation says about one argument.
type paramDoc struct {
	Intent Direction
	Text   string
}

// WorkspaceQuery reports whether the argument documents the "-1 means
// return the required size" convention.
func (d *paramDoc) WorkspaceQuery() bool {
	return d != nil && strings.Contains(strings.ToLower(d.Text), "workspace query")
}

// MentionsMinusOne reports a documented "= -1" convention.
func (d *paramDoc) MentionsMinusOne() bool {
	return d != nil && docMinusOne.MatchString(d.Text)
}

// Dimension returns the text of the first "dimension (...)" clause, without
// the outer parentheses.
func (d *paramDoc) Dimension() (string, bool) {
	if d == nil {
		return "", false
	}
	loc := docDim.FindStringIndex(d.Text)
	if loc == nil {
		return "", false
	}
	depth := 1
	start := loc[1]
	for i := start; i < len(d.Text); i++ {
		switch d.Text[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return strings.TrimSpace(d.Text[start:i]), true
			}
		}
	}
	return "", false
}

func intentFromTag(tag string) Direction {
	switch strings.ReplaceAll(tag, " ", "") {
	case "in":
		return DirIn
	case "out":
		return DirOut
	case "in,out":
		return DirInOut
	}
	return DirUnresolved
}

func intentFromOldStyle(tag string) Direction {
	switch tag {
	case "input":
		return DirIn
	case "output", "workspace", "workspace/output", "output/workspace":
		return DirOut
	case "input/output", "input or output", "input/workspace":
		return DirInOut
	}
	return DirUnresolved
}

// parseDocs reads argument documentation out of the comment lines around a
// routine. Both the doxygen form ("\param[in] N") and the older LAPACK form
// ("N   (input) INTEGER") are recognized. Keys are lower case.
func parseDocs(comments []string) map[string]*paramDoc {
	docs := make(map[string]*paramDoc)
	var (
		cur  *paramDoc
		text []string
	)
	flush := func() {
		if cur != nil {
			cur.Text = strings.Join(text, " ")
		}
		cur, text = nil, nil
	}
	for _, line := range comments {
		line = strings.TrimPrefix(line, ">")
		if docSkip.MatchString(line) {
			continue
		}
		if m := docParamTag.FindStringSubmatch(line); m != nil {
			flush()
			cur = &paramDoc{Intent: intentFromTag(m[1])}
			docs[strings.ToLower(m[2])] = cur
			continue
		}
		if m := docOldArg.FindStringSubmatch(line); m != nil {
			flush()
			cur = &paramDoc{Intent: intentFromOldStyle(m[2])}
			docs[strings.ToLower(m[1])] = cur
			text = append(text, strings.TrimSpace(m[3]))
			continue
		}
		if docStop.MatchString(line) {
			flush()
			continue
		}
		if cur != nil {
			if t := strings.TrimSpace(line); t != "" {
				text = append(text, t)
			}
		}
	}
	flush()
	return docs
}
