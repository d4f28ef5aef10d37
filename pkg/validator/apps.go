package validator

import "github.com/cuemby/warren/pkg/types"

func floatPtr(f float64) *float64 { return &f }

// RegisterBuiltinApps registers the two applications the service ships
// with: caesar, an island/component source-finder, and selavy, a second
// source-finder used here mainly to exercise flag, enum-with-transform
// and mandatory-string options that caesar's descriptor set doesn't cover.
func RegisterBuiltinApps(r *Registry) {
	r.Register(caesarDescriptor())
	r.Register(selavyDescriptor())
}

func caesarDescriptor() AppDescriptor {
	return AppDescriptor{
		Name: "caesar",
		Options: map[string]Descriptor{
			"seedthr": {
				Name:        "seedthr",
				Kind:        OptValue,
				ValueType:   types.ValueFloat,
				Min:         floatPtr(0),
				Max:         floatPtr(100),
				Default:     5.0,
				Category:    "detection",
				Description: "seed detection significance threshold",
			},
			"mergethr": {
				Name:        "mergethr",
				Kind:        OptValue,
				ValueType:   types.ValueFloat,
				Min:         floatPtr(0),
				Max:         floatPtr(100),
				Default:     2.5,
				Category:    "detection",
				Description: "merge threshold for adjacent seed pixels",
			},
			"nthreads": {
				Name:        "nthreads",
				Kind:        OptValue,
				ValueType:   types.ValueInt,
				Min:         floatPtr(1),
				Max:         floatPtr(64),
				Default:     4,
				Category:    "runtime",
				Description: "worker thread count",
			},
			"algorithm": {
				Name:          "algorithm",
				Kind:          OptEnum,
				ValueType:     types.ValueString,
				AllowedValues: []string{"blobfinder", "wavelets", "hybrid"},
				Default:       "blobfinder",
				Category:      "detection",
				Description:   "source-finding algorithm",
			},
		},
	}
}

func selavyDescriptor() AppDescriptor {
	return AppDescriptor{
		Name: "selavy",
		Options: map[string]Descriptor{
			"subimage": {
				Name:        "subimage",
				Kind:        OptFlag,
				Category:    "runtime",
				Description: "split the image into sub-image tiles before detection",
			},
			"flagging": {
				Name:          "flagging",
				Kind:          OptEnum,
				ValueType:     types.ValueString,
				AllowedValues: []string{"strict", "relaxed", "off"},
				Default:       "relaxed",
				Category:      "detection",
				Description:   "growth-flagging policy, mapped to the native numeric code",
				Transform:     flaggingTransform,
			},
			"catalog_name": {
				Name:        "catalog_name",
				Kind:        OptValue,
				ValueType:   types.ValueString,
				Mandatory:   true,
				Category:    "output",
				Description: "output catalog identifier",
			},
			"nproc": {
				Name:        "nproc",
				Kind:        OptValue,
				ValueType:   types.ValueInt,
				Min:         floatPtr(1),
				Max:         floatPtr(32),
				Default:     1,
				Category:    "runtime",
				Description: "MPI process count",
			},
		},
	}
}

// flaggingTransform maps selavy's human-readable flagging label to the
// numeric code its native CLI expects. An unrecognized label is a hard
// rejection (empty return).
func flaggingTransform(value string) string {
	switch value {
	case "strict":
		return "2"
	case "relaxed":
		return "1"
	case "off":
		return "0"
	default:
		return ""
	}
}
