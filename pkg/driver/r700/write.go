package r700

import (
	"context"
	"net/http"
	"strings"

	"github.com/smartx-rfid/smartx/pkg/tag"
	"github.com/smartx-rfid/smartx/pkg/util"
)

type blockWrite struct {
	MemoryBank string `json:"memoryBank"`
	WordOffset int    `json:"wordOffset"`
	DataHex    string `json:"dataHex"`
}

type accessCommand struct {
	Identifier string     `json:"identifier"`
	BlockWrite blockWrite `json:"blockWrite"`
}

type tagSelector struct {
	Action        string `json:"action"`
	TagMemoryBank string `json:"tagMemoryBank"`
	BitOffset     int    `json:"bitOffset"`
	Mask          string `json:"mask"`
	MaskLength    int    `json:"maskLength"`
}

type accessConfiguration struct {
	AccessCommands       []accessCommand `json:"accessCommands"`
	TagAccessPasswordHex string          `json:"tagAccessPasswordHex"`
	TagSelectors         []tagSelector   `json:"tagSelectors"`
}

// WriteEPC queues a tag-access operation writing the new EPC word by
// word. An EPC selector is promoted to TID when the tag is cached, so
// the write still lands after the EPC changes.
func (d *Driver) WriteEPC(ctx context.Context, req tag.WriteRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if !d.Connected() {
		return util.ErrNotConnected
	}

	if req.TargetIdentifier == "epc" {
		if tid := d.Events().TIDForEPC(d.Name(), strings.ToLower(req.TargetValue)); tid != "" {
			req.TargetIdentifier = "tid"
			req.TargetValue = strings.ToUpper(tid)
		}
	}

	payload := map[string]interface{}{
		"accessConfigurations": []accessConfiguration{writeConfiguration(req)},
	}
	_, err := d.client.Do(ctx, http.MethodPost, pathTagAccess, payload)
	return err
}

// writeConfiguration splits the 96-bit EPC into three block writes at
// word offsets 2, 4 and 6 and selects the target tag by memory bank
// mask.
func writeConfiguration(req tag.WriteRequest) accessConfiguration {
	epc := req.NewEPC
	commands := []accessCommand{
		{Identifier: "1", BlockWrite: blockWrite{MemoryBank: "epc", WordOffset: 2, DataHex: epc[0:8]}},
		{Identifier: "2", BlockWrite: blockWrite{MemoryBank: "epc", WordOffset: 4, DataHex: epc[8:16]}},
		{Identifier: "3", BlockWrite: blockWrite{MemoryBank: "epc", WordOffset: 6, DataHex: epc[16:24]}},
	}

	selector := tagSelector{
		Action:        "include",
		TagMemoryBank: req.TargetIdentifier,
		BitOffset:     32,
		Mask:          req.TargetValue,
		MaskLength:    96,
	}
	if req.TargetIdentifier == "" {
		selector.TagMemoryBank = "epc"
		selector.MaskLength = 1
	}
	if req.TargetIdentifier == "tid" {
		selector.BitOffset = 0
	}

	return accessConfiguration{
		AccessCommands:       commands,
		TagAccessPasswordHex: req.Password,
		TagSelectors:         []tagSelector{selector},
	}
}
