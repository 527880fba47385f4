package tag

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// sgtinHeader is the EPC header byte identifying the SGTIN-96 scheme.
const sgtinHeader = 0x30

// sgtinPartition maps the 3-bit partition value to the company prefix /
// item reference split defined by the GS1 Tag Data Standard.
var sgtinPartitions = [7]struct {
	companyBits   uint
	companyDigits int
	itemBits      uint
	itemDigits    int
}{
	{40, 12, 4, 1},
	{37, 11, 7, 2},
	{34, 10, 10, 3},
	{30, 9, 14, 4},
	{27, 8, 17, 5},
	{24, 7, 20, 6},
	{20, 6, 24, 7},
}

// DecodeGTIN decodes a 24-hex-character SGTIN-96 EPC into its GTIN-14.
// It returns an empty string for any EPC that is not a structurally valid
// SGTIN-96, matching the pipeline's "gtin is best effort" contract.
func DecodeGTIN(epc string) string {
	gtin, err := decodeSGTIN96(epc)
	if err != nil {
		return ""
	}
	return gtin
}

func decodeSGTIN96(epc string) (string, error) {
	raw, err := hex.DecodeString(epc)
	if err != nil || len(raw) != 12 {
		return "", fmt.Errorf("not a 96-bit EPC")
	}
	if raw[0] != sgtinHeader {
		return "", fmt.Errorf("not an SGTIN-96 header")
	}

	// Layout after the 8-bit header: filter(3) partition(3) company item serial(38)
	partition := extractBits(raw, 11, 3)
	if partition > 6 {
		return "", fmt.Errorf("invalid partition %d", partition)
	}
	p := sgtinPartitions[partition]

	company := extractBits(raw, 14, p.companyBits)
	item := extractBits(raw, 14+p.companyBits, p.itemBits)

	if company >= pow10(p.companyDigits) || item >= pow10(p.itemDigits) {
		return "", fmt.Errorf("field exceeds digit capacity")
	}

	companyStr := fmt.Sprintf("%0*d", p.companyDigits, company)
	itemStr := fmt.Sprintf("%0*d", p.itemDigits, item)

	// GTIN-14 payload: indicator digit, company prefix, remaining item digits.
	payload := itemStr[:1] + companyStr + itemStr[1:]
	return payload + checkDigit(payload), nil
}

// extractBits reads n bits starting at bit offset (MSB-first) from raw.
func extractBits(raw []byte, offset, n uint) uint64 {
	var v uint64
	for i := uint(0); i < n; i++ {
		bit := offset + i
		b := raw[bit/8]
		v <<= 1
		v |= uint64(b>>(7-bit%8)) & 1
	}
	return v
}

func pow10(digits int) uint64 {
	v := uint64(1)
	for i := 0; i < digits; i++ {
		v *= 10
	}
	return v
}

// checkDigit computes the GS1 mod-10 check digit for a 13-digit payload.
func checkDigit(payload string) string {
	sum := 0
	weight := 3
	for _, c := range payload {
		sum += int(c-'0') * weight
		if weight == 3 {
			weight = 1
		} else {
			weight = 3
		}
	}
	return string(rune('0' + (10-sum%10)%10))
}

// EncodeSGTIN96 is the inverse of DecodeGTIN for a given partition. The
// serial occupies the low 38 bits.
func EncodeSGTIN96(partition int, company, item, serial uint64) (string, error) {
	if partition < 0 || partition > 6 {
		return "", fmt.Errorf("invalid partition %d", partition)
	}
	p := sgtinPartitions[partition]
	if company >= pow10(p.companyDigits) || item >= pow10(p.itemDigits) {
		return "", fmt.Errorf("field exceeds digit capacity")
	}

	var bits strings.Builder
	appendBits := func(v uint64, n uint) {
		for i := int(n) - 1; i >= 0; i-- {
			if v>>uint(i)&1 == 1 {
				bits.WriteByte('1')
			} else {
				bits.WriteByte('0')
			}
		}
	}
	appendBits(sgtinHeader, 8)
	appendBits(1, 3) // filter: point of sale
	appendBits(uint64(partition), 3)
	appendBits(company, p.companyBits)
	appendBits(item, p.itemBits)
	appendBits(serial, 38)

	s := bits.String()
	raw := make([]byte, 12)
	for i := 0; i < 96; i++ {
		if s[i] == '1' {
			raw[i/8] |= 1 << (7 - i%8)
		}
	}
	return hex.EncodeToString(raw), nil
}
