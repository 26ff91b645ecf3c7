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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/united-manufacturing-hub/mtconnect-recorder/cmd/mtconnect-recorder/shared"
)

const namespacedSnapshot = `<?xml version="1.0" encoding="UTF-8"?>
<MTConnectStreams xmlns="urn:mtconnect.org:MTConnectStreams:1.3">
  <Header creationTime="2026-08-25T10:00:00Z" instanceId="1" lastSequence="4712"/>
  <Streams>
    <DeviceStream name="QuickTurn" uuid="qt-001">
      <ComponentStream component="Path" name="path">
        <Samples>
          <SpindleSpeed dataItemId="ss1" name="Srpm" timestamp="2026-08-25T10:00:00Z">1200</SpindleSpeed>
          <Load dataItemId="ld1" timestamp="2026-08-25T10:00:00Z">12.5</Load>
          <Angle dataItemId="an1" timestamp="2026-08-25T10:00:00Z"></Angle>
        </Samples>
        <Events>
          <Execution dataItemId="exe" name="execution" timestamp="2026-08-25T10:00:00Z">ACTIVE</Execution>
          <Program dataItemId="prg" timestamp="2026-08-25T10:00:00Z">O1234</Program>
        </Events>
        <Condition>
          <Normal dataItemId="cond_sys" name="system_cond" type="SYSTEM" timestamp="2026-08-25T10:00:00Z"/>
        </Condition>
      </ComponentStream>
    </DeviceStream>
  </Streams>
</MTConnectStreams>`

const plainSnapshot = `<?xml version="1.0" encoding="UTF-8"?>
<MTConnectStreams>
  <Header lastSequence="9"/>
  <Streams>
    <DeviceStream name="VTC">
      <ComponentStream component="Path">
        <Events>
          <Execution dataItemId="exe">READY</Execution>
        </Events>
      </ComponentStream>
    </DeviceStream>
  </Streams>
</MTConnectStreams>`

func TestParseNamespacedSnapshot(t *testing.T) {
	doc := Parse([]byte(namespacedSnapshot), false)

	assert.True(t, doc.HasSequence)
	assert.Equal(t, int64(4712), doc.Sequence)
	assert.Equal(t, map[string]shared.Value{
		"Srpm":      shared.IntValue(1200),
		"ld1":       shared.FloatValue(12.5),
		"an1":       shared.NullValue(),
		"execution": shared.StringValue("ACTIVE"),
		"prg":       shared.StringValue("O1234"),
	}, doc.Values)
}

func TestParseWithCondition(t *testing.T) {
	doc := Parse([]byte(namespacedSnapshot), true)

	assert.Equal(t, shared.StringValue("Normal"), doc.Values["system_cond"])
}

func TestParseWithoutNamespace(t *testing.T) {
	doc := Parse([]byte(plainSnapshot), false)

	assert.True(t, doc.HasSequence)
	assert.Equal(t, int64(9), doc.Sequence)
	assert.Equal(t, shared.StringValue("READY"), doc.Values["exe"])
}

func TestParseIsIdempotent(t *testing.T) {
	first := Parse([]byte(namespacedSnapshot), true)
	second := Parse([]byte(namespacedSnapshot), true)

	assert.Equal(t, first, second)
}

func TestParseTruncatedSnapshot(t *testing.T) {
	truncated := namespacedSnapshot[:len(namespacedSnapshot)/2]
	doc := Parse([]byte(truncated), false)

	assert.False(t, doc.HasSequence)
	assert.Empty(t, doc.Values)
}

func TestParseNonXMLBody(t *testing.T) {
	doc := Parse([]byte("503 Service Unavailable"), false)

	assert.False(t, doc.HasSequence)
	assert.Empty(t, doc.Values)
}

func TestParseWrongRoot(t *testing.T) {
	doc := Parse([]byte(`<html><body>login required</body></html>`), false)

	assert.False(t, doc.HasSequence)
	assert.Empty(t, doc.Values)
}
