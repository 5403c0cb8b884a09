package pkiconfig

import (
	"time"

	"github.com/aox/pkicore/berrors"
	"gopkg.in/yaml.v3"
)

// The option indices this binary's schema knows about. New options get
// new indices appended here; removing one leaves a permanent gap rather
// than ever reusing a retired index, since an older persisted table may
// still carry it.
const (
	OptionSerialPrefix            OptionIndex = 1
	OptionValidityDays            OptionIndex = 2
	OptionSideChannelProtect      OptionIndex = 3
	OptionIssuerCommonName        OptionIndex = 4
	OptionSessionConnectTimeoutMS OptionIndex = 5
	OptionSessionDataTimeoutMS    OptionIndex = 6

	// OptionConfigChanged and OptionSelfTestTrigger are the ephemeral
	// options spec §6 names: recognised, but MarshalDER never persists
	// them (see ephemeralIndices).
	OptionConfigChanged   OptionIndex = 1000
	OptionSelfTestTrigger OptionIndex = 1001
)

// Document is the YAML authoring format an operator edits; Compile turns
// it into the persisted Table, and FromTable does the reverse for a
// config-reload path.
type Document struct {
	SerialPrefix            byte   `yaml:"serialPrefix"`
	ValidityDays            int    `yaml:"validityDays"`
	SideChannelProtect      bool   `yaml:"sideChannelProtect"`
	IssuerCommonName        string `yaml:"issuerCommonName"`
	SessionConnectTimeoutMS int    `yaml:"sessionConnectTimeoutMs"`
	SessionDataTimeoutMS    int    `yaml:"sessionDataTimeoutMs"`
}

// LoadDocument parses a YAML-authored config file.
func LoadDocument(yamlBytes []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(yamlBytes, &doc); err != nil {
		return nil, berrors.New(berrors.BadData, "pkiconfig: parsing YAML: %v", err)
	}
	return &doc, nil
}

// Compile converts the authoring document into the persisted option
// table. Zero-valued optional fields are omitted rather than persisted as
// explicit zeroes, so a freshly-compiled table and one read back after a
// round trip agree on which indices are present.
func (d *Document) Compile() *Table {
	t := NewTable()
	t.Set(OptionSerialPrefix, IntValue(int64(d.SerialPrefix)))
	t.Set(OptionValidityDays, IntValue(int64(d.ValidityDays)))
	t.Set(OptionSideChannelProtect, BoolValue(d.SideChannelProtect))
	if d.IssuerCommonName != "" {
		t.Set(OptionIssuerCommonName, StringValue(d.IssuerCommonName))
	}
	if d.SessionConnectTimeoutMS != 0 {
		t.Set(OptionSessionConnectTimeoutMS, IntValue(int64(d.SessionConnectTimeoutMS)))
	}
	if d.SessionDataTimeoutMS != 0 {
		t.Set(OptionSessionDataTimeoutMS, IntValue(int64(d.SessionDataTimeoutMS)))
	}
	return t
}

// FromTable reconstructs a Document from a persisted Table, ignoring any
// index this schema does not recognise -- spec §6's "unknown indices on
// read are skipped, not rejected" forward-compatibility rule.
func FromTable(t *Table) *Document {
	var d Document
	if v, ok := t.Get(OptionSerialPrefix); ok && v.Kind == KindInt {
		d.SerialPrefix = byte(v.Int)
	}
	if v, ok := t.Get(OptionValidityDays); ok && v.Kind == KindInt {
		d.ValidityDays = int(v.Int)
	}
	if v, ok := t.Get(OptionSideChannelProtect); ok && v.Kind == KindBool {
		d.SideChannelProtect = v.Bool
	}
	if v, ok := t.Get(OptionIssuerCommonName); ok && v.Kind == KindString {
		d.IssuerCommonName = v.Str
	}
	if v, ok := t.Get(OptionSessionConnectTimeoutMS); ok && v.Kind == KindInt {
		d.SessionConnectTimeoutMS = int(v.Int)
	}
	if v, ok := t.Get(OptionSessionDataTimeoutMS); ok && v.Kind == KindInt {
		d.SessionDataTimeoutMS = int(v.Int)
	}
	return &d
}

// ValidityPeriod returns ValidityDays as a time.Duration, the form
// scep.Config.ValidityPeriod expects.
func (d *Document) ValidityPeriod() time.Duration {
	return time.Duration(d.ValidityDays) * 24 * time.Hour
}

// ConnectTimeout and DataTimeout return the two session/Session timeouts
// in their native time.Duration form.
func (d *Document) ConnectTimeout() time.Duration {
	return time.Duration(d.SessionConnectTimeoutMS) * time.Millisecond
}

func (d *Document) DataTimeout() time.Duration {
	return time.Duration(d.SessionDataTimeoutMS) * time.Millisecond
}
