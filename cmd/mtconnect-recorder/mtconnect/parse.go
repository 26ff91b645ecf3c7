// Copyright 2023 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mtconnect

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/united-manufacturing-hub/mtconnect-recorder/cmd/mtconnect-recorder/shared"
	"go.uber.org/zap"
)

// Document is the flattened view of one /current response.
type Document struct {
	Values      map[string]shared.Value
	Sequence    int64
	HasSequence bool
}

// Parse flattens an MTConnect current snapshot into a map of data item name
// to typed scalar.
//
// The namespace of the root element (if any) is used for all element
// matching; documents without a namespace match on local names alone.
// Header/@lastSequence becomes the document sequence. Children of Samples
// and Events are keyed by their name attribute, falling back to dataItemId,
// falling back to the tag name; their text is coerced int -> float ->
// string, an empty text node yields null. With includeCondition, children
// of Condition elements are flattened the same way, the condition state
// (the tag name, e.g. Normal or Fault) serving as the value.
//
// Truncated or otherwise malformed XML is common on partial responses and
// never returned as an error: the caller gets an empty document and treats
// it as no new data.
func Parse(body []byte, includeCondition bool) Document {
	parsed := Document{Values: make(map[string]shared.Value)}
	decoder := xml.NewDecoder(bytes.NewReader(body))

	var rootSeen bool
	var rootSpace string
	var path []string
	section := ""
	sectionDepth := -1
	itemKey := ""
	itemOpen := false
	var itemText strings.Builder

	for {
		token, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				break
			}
			zap.S().Debugf("Discarding unparsable snapshot: %s", err)
			return Document{Values: make(map[string]shared.Value)}
		}
		switch element := token.(type) {
		case xml.StartElement:
			if !rootSeen {
				rootSeen = true
				rootSpace = element.Name.Space
			}
			path = append(path, element.Name.Local)
			if element.Name.Space != rootSpace {
				continue
			}
			switch {
			case element.Name.Local == "Header":
				if raw, ok := attribute(element, "lastSequence"); ok {
					if sequence, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil {
						parsed.Sequence = sequence
						parsed.HasSequence = true
					}
				}
			case section == "" && isSection(element.Name.Local, includeCondition):
				section = element.Name.Local
				sectionDepth = len(path)
			case section != "" && len(path) == sectionDepth+1:
				itemKey = dataItemKey(element)
				if section == "Condition" {
					// For conditions the state is the tag itself
					// (Normal, Warning, Fault, Unavailable).
					parsed.Values[itemKey] = shared.StringValue(element.Name.Local)
					itemOpen = false
				} else {
					itemOpen = true
					itemText.Reset()
				}
			}
		case xml.CharData:
			if itemOpen && len(path) == sectionDepth+1 {
				itemText.Write(element)
			}
		case xml.EndElement:
			if itemOpen && len(path) == sectionDepth+1 {
				text := strings.TrimSpace(itemText.String())
				if text == "" {
					parsed.Values[itemKey] = shared.NullValue()
				} else {
					parsed.Values[itemKey] = shared.ValueFromText(text)
				}
				itemOpen = false
			}
			if section != "" && len(path) == sectionDepth {
				section = ""
				sectionDepth = -1
			}
			if len(path) > 0 {
				path = path[:len(path)-1]
			}
		}
	}
	return parsed
}

func isSection(local string, includeCondition bool) bool {
	if local == "Samples" || local == "Events" {
		return true
	}
	return includeCondition && local == "Condition"
}

// dataItemKey prefers the name attribute, then dataItemId, then the tag name.
func dataItemKey(element xml.StartElement) string {
	if value, ok := attribute(element, "name"); ok && value != "" {
		return value
	}
	if value, ok := attribute(element, "dataItemId"); ok && value != "" {
		return value
	}
	return element.Name.Local
}

func attribute(element xml.StartElement, name string) (string, bool) {
	for _, attr := range element.Attr {
		if attr.Name.Local == name {
			return attr.Value, true
		}
	}
	return "", false
}
