package ledger

import (
	"errors"
	"strconv"

	"github.com/tidwall/gjson"
)

// Payloader is implemented by errors that carry the raw JSON body the remote
// side attached to a rejection.
type Payloader interface {
	Payload() []byte
}

// gasLocations are the places a rejection payload is known to nest a gas
// summary, probed in order.
var gasLocations = []string{
	"effects.gasUsed",
	"data.effects.gasUsed",
	"error.data.effects.gasUsed",
	"cause.effects.gasUsed",
	"gasUsed",
}

// RecoverGas extracts a gas summary from the payload of err, if any. Many
// rejections happen before gas is charged, so a false return is normal.
func RecoverGas(err error) (GasSummary, bool) {
	var p Payloader
	if !errors.As(err, &p) {
		return GasSummary{}, false
	}
	body := p.Payload()
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return GasSummary{}, false
	}
	for _, loc := range gasLocations {
		v := gjson.GetBytes(body, loc)
		if !v.IsObject() {
			continue
		}
		if gas, ok := parseGas(v); ok {
			return gas, true
		}
	}
	return GasSummary{}, false
}

// parseGas reads a gasUsed object. Fields may be JSON numbers or numeric
// strings; computationCost is required, the rest default to zero.
func parseGas(v gjson.Result) (GasSummary, bool) {
	if !v.Get("computationCost").Exists() {
		return GasSummary{}, false
	}
	comp, ok := parseCost(v.Get("computationCost"))
	if !ok {
		return GasSummary{}, false
	}
	storage, ok := parseCost(v.Get("storageCost"))
	if !ok {
		return GasSummary{}, false
	}
	rebate, ok := parseCost(v.Get("storageRebate"))
	if !ok {
		return GasSummary{}, false
	}
	return GasSummary{ComputationCost: comp, StorageCost: storage, StorageRebate: rebate}, true
}

func parseCost(v gjson.Result) (uint64, bool) {
	if !v.Exists() {
		return 0, true
	}
	switch v.Type {
	case gjson.String, gjson.Number:
		n, err := strconv.ParseUint(v.String(), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
