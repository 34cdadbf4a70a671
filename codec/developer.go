package codec

import (
	"github.com/lucasjlepore/fit-activity/basetype"
)

const fieldDescriptionMessage = "field_description"

// DeveloperFieldDescription is what a field_description message says about
// one developer field.
type DeveloperFieldDescription struct {
	DeveloperDataIndex uint8
	Number             uint8
	Name               string
	BaseType           basetype.Type
	Units              string
}

type developerKey struct {
	index  uint8
	number uint8
}

// developerDescriptions collects field_description messages seen so far in
// one decode or encode call.
type developerDescriptions map[developerKey]DeveloperFieldDescription

func (m developerDescriptions) lookup(f DeveloperFieldDefinition) (DeveloperFieldDescription, bool) {
	if m == nil {
		return DeveloperFieldDescription{}, false
	}
	desc, ok := m[developerKey{index: f.DeveloperDataIndex, number: f.Number}]
	return desc, ok
}

// observe registers the values of a complete field_description message.
func (m developerDescriptions) observe(message string, values Values) (DeveloperFieldDescription, bool) {
	if message != fieldDescriptionMessage {
		return DeveloperFieldDescription{}, false
	}
	index, ok1 := uintValue(values["developer_data_index"])
	number, ok2 := uintValue(values["field_definition_number"])
	baseType, ok3 := uintValue(values["fit_base_type_id"])
	if !ok1 || !ok2 || !ok3 {
		return DeveloperFieldDescription{}, false
	}
	desc := DeveloperFieldDescription{
		DeveloperDataIndex: uint8(index),
		Number:             uint8(number),
		BaseType:           basetype.Type(baseType),
	}
	desc.Name, _ = values["field_name"].(string)
	desc.Units, _ = values["units"].(string)
	if desc.Name == "" {
		desc.Name = developerFieldName(DeveloperFieldDefinition{Number: desc.Number, DeveloperDataIndex: desc.DeveloperDataIndex})
	}
	m[developerKey{index: desc.DeveloperDataIndex, number: desc.Number}] = desc
	return desc, true
}

// uintValue accepts the integer shapes a caller or the decoder may store.
func uintValue(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint64:
		return x, true
	case int64:
		return uint64(x), x >= 0
	case int:
		return uint64(x), x >= 0
	case uint8:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case float64:
		return uint64(x), x >= 0
	default:
		return 0, false
	}
}
