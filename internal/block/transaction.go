package block

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"nameledger.dev/nameledger/internal/nameerrors"
)

// EncodeTransactionText produces the canonical text form of tx persisted
// into the blocks table's transaction column (§6 "Canonical transaction
// text"): a stable key-ordered encoding of
// {class, identity, confirmation, data, pub_key}, binary fields upper-case
// hex, such that DecodeTransactionText∘EncodeTransactionText is the
// identity on well-formed values.
func EncodeTransactionText(tx *Transaction) string {
	fields := map[string]string{
		"class":        string(tx.Class),
		"identity":     strings.ToUpper(hex.EncodeToString(tx.Identity)),
		"confirmation": strings.ToUpper(hex.EncodeToString(tx.Confirmation)),
		"data":         tx.Data,
		"pub_key":      strings.ToUpper(hex.EncodeToString(tx.PubKey)),
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s=%s", k, escapeField(fields[k]))
	}
	return b.String()
}

// DecodeTransactionText is the inverse of EncodeTransactionText.
func DecodeTransactionText(text string) (*Transaction, error) {
	fields := map[string]string{}
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			return nil, nameerrors.ErrBadCanonicalText
		}
		fields[line[:idx]] = unescapeField(line[idx+1:])
	}

	required := []string{"class", "identity", "confirmation", "data", "pub_key"}
	for _, k := range required {
		if _, ok := fields[k]; !ok {
			return nil, nameerrors.ErrMissingField
		}
	}

	class := TxClass(fields["class"])
	if class != ClassZone && class != ClassDomain {
		return nil, nameerrors.ErrUnknownTxClass
	}

	identity, err := hex.DecodeString(fields["identity"])
	if err != nil {
		return nil, nameerrors.ErrBadHexEncoding
	}
	confirmation, err := hex.DecodeString(fields["confirmation"])
	if err != nil {
		return nil, nameerrors.ErrBadHexEncoding
	}
	pubKey, err := hex.DecodeString(fields["pub_key"])
	if err != nil {
		return nil, nameerrors.ErrBadHexEncoding
	}

	return &Transaction{
		Identity:     identity,
		Confirmation: confirmation,
		Class:        class,
		Data:         fields["data"],
		PubKey:       pubKey,
	}, nil
}

// escapeField escapes backslash and newline, the two characters that would
// otherwise corrupt the line-oriented encoding. '=' needs no escaping:
// decoding splits each line at its first '=' only. data is canonical text
// itself (§3) and may legitimately contain newlines and '='.
func escapeField(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

func unescapeField(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// ZoneRecord is the decoded view of a "zone" class transaction's canonical
// data text (§10.4 supplement: ZoneRecord/DomainRecord decode helpers).
// The chain store decodes it to list zones and their difficulties; the
// validator decodes a domain's DomainRecord to find the zone whose
// difficulty applies.
type ZoneRecord struct {
	Name       string
	Difficulty uint32
}

// DomainRecord is the zone-record view of a "domain" class transaction's
// canonical data text: the parent zone name plus the DNS records it
// publishes.
type DomainRecord struct {
	Zone    string
	Records map[string]string // record type ("A", "TXT", ...) -> value
}

// DecodeZoneRecord parses a zone transaction's Data field. Canonical form
// is the same key=value, newline-separated encoding used at the
// transaction level, with keys "name" and "difficulty".
func DecodeZoneRecord(data string) (*ZoneRecord, error) {
	fields, err := parseKV(data)
	if err != nil {
		return nil, err
	}
	name, ok := fields["name"]
	if !ok {
		return nil, nameerrors.ErrMissingField
	}
	diffText, ok := fields["difficulty"]
	if !ok {
		return nil, nameerrors.ErrMissingField
	}
	var difficulty uint32
	if _, err := fmt.Sscanf(diffText, "%d", &difficulty); err != nil {
		return nil, nameerrors.ErrBadCanonicalText
	}
	return &ZoneRecord{Name: name, Difficulty: difficulty}, nil
}

// DecodeDomainRecord parses a domain transaction's Data field. Canonical
// form carries "zone" plus any number of "record.<TYPE>" keys.
func DecodeDomainRecord(data string) (*DomainRecord, error) {
	fields, err := parseKV(data)
	if err != nil {
		return nil, err
	}
	zone, ok := fields["zone"]
	if !ok {
		return nil, nameerrors.ErrMissingField
	}
	records := map[string]string{}
	const prefix = "record."
	for k, v := range fields {
		if strings.HasPrefix(k, prefix) {
			records[strings.ToUpper(strings.TrimPrefix(k, prefix))] = v
		}
	}
	return &DomainRecord{Zone: zone, Records: records}, nil
}

func parseKV(data string) (map[string]string, error) {
	fields := map[string]string{}
	for _, line := range strings.Split(data, "\n") {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			return nil, nameerrors.ErrBadCanonicalText
		}
		fields[line[:idx]] = unescapeField(line[idx+1:])
	}
	return fields, nil
}

// EncodeZoneRecord is the inverse of DecodeZoneRecord, used by the CLI /
// admission layer when constructing a new zone transaction's Data field.
func EncodeZoneRecord(r *ZoneRecord) string {
	return fmt.Sprintf("difficulty=%s\nname=%s", escapeField(fmt.Sprint(r.Difficulty)), escapeField(r.Name))
}

// EncodeDomainRecord is the inverse of DecodeDomainRecord.
func EncodeDomainRecord(r *DomainRecord) string {
	keys := make([]string, 0, len(r.Records))
	for k := range r.Records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "zone=%s", escapeField(r.Zone))
	for _, k := range keys {
		fmt.Fprintf(&b, "\nrecord.%s=%s", strings.ToLower(k), escapeField(r.Records[k]))
	}
	return b.String()
}
