package codec

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// unlimitedPlaces marks a number tag that keeps whatever precision it is given
const unlimitedPlaces = -1

var registry = map[string]Codec{}

func init() {
	registerTime("date_dmy", "02-01-2006", KindDate)
	registerTime("date_mdy", "01-02-2006", KindDate)
	registerTime("date_ymd", "2006-01-02", KindDate)
	registerTime("datetime_dmy", "02-01-2006 15:04", KindDateTime)
	registerTime("datetime_mdy", "01-02-2006 15:04", KindDateTime)
	registerTime("datetime_ymd", "2006-01-02 15:04", KindDateTime)
	registerTime("datetime_seconds_dmy", "02-01-2006 15:04:05", KindDateTime)
	registerTime("datetime_seconds_mdy", "01-02-2006 15:04:05", KindDateTime)
	registerTime("datetime_seconds_ymd", "2006-01-02 15:04:05", KindDateTime)
	registerTime("time", "15:04", KindTime)
	registerTime("time_mm_ss", "04:05", KindTime)

	register(Codec{Tag: "integer", Kind: KindInt, load: loadInteger, dump: dumpInteger})

	registerNumber("number", unlimitedPlaces, true)
	registerNumber("number_comma_decimal", unlimitedPlaces, true)
	for places := int32(1); places <= 4; places++ {
		suffix := "_" + strconv.Itoa(int(places)) + "dp"
		registerNumber("number"+suffix, places, false)
		registerNumber("number"+suffix+"_comma_decimal", places, true)
	}

	for _, tag := range []string{
		"",
		"alpha_only",
		"email",
		"phone",
		"phone_australia",
		"postalcode_australia",
		"postalcode_canada",
		"postalcode_french",
		"ssn",
		"vmrn",
		"zipcode",
		"Zipcode",
	} {
		register(Codec{Tag: tag, Kind: KindText, load: loadText, dump: dumpText})
	}
}

func register(c Codec) {
	registry[c.Tag] = c
}

func registerTime(tag, layout string, kind StorageKind) {
	register(Codec{
		Tag:  tag,
		Kind: kind,
		load: func(wire string) (interface{}, error) {
			return time.ParseInLocation(layout, wire, time.UTC)
		},
		dump: func(value interface{}) (string, error) {
			t, ok := value.(time.Time)
			if !ok {
				return "", typeMismatch("time.Time", value)
			}
			return t.Format(layout), nil
		},
	})
}

// registerNumber adds a decimal tag. Values are rounded half away from zero
// to places digits; comma tags use ',' as the decimal separator on the wire.
// Plain "number" also tolerates a comma on input, as the platform does.
func registerNumber(tag string, places int32, comma bool) {
	commaOut := strings.Contains(tag, "comma")
	register(Codec{
		Tag:  tag,
		Kind: KindFloat,
		load: func(wire string) (interface{}, error) {
			if comma {
				wire = strings.Replace(wire, ",", ".", 1)
			}
			d, err := decimal.NewFromString(wire)
			if err != nil {
				return nil, err
			}
			if places != unlimitedPlaces {
				d = d.Round(places)
			}
			return d, nil
		},
		dump: func(value interface{}) (string, error) {
			d, err := asDecimal(value)
			if err != nil {
				return "", err
			}
			var s string
			if places == unlimitedPlaces {
				s = d.String()
			} else {
				s = d.StringFixed(places)
			}
			if commaOut {
				s = strings.Replace(s, ".", ",", 1)
			}
			return s, nil
		},
	})
}

func asDecimal(value interface{}) (decimal.Decimal, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case *decimal.Decimal:
		if v == nil {
			return decimal.Decimal{}, typeMismatch("decimal.Decimal", value)
		}
		return *v, nil
	case int64:
		return decimal.NewFromInt(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	}
	return decimal.Decimal{}, typeMismatch("decimal.Decimal", value)
}

func loadInteger(wire string) (interface{}, error) {
	return strconv.ParseInt(wire, 10, 64)
}

func dumpInteger(value interface{}) (string, error) {
	switch v := value.(type) {
	case int64:
		return strconv.FormatInt(v, 10), nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	}
	return "", typeMismatch("int64", value)
}

func loadText(wire string) (interface{}, error) {
	return wire, nil
}

func dumpText(value interface{}) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", typeMismatch("string", value)
	}
	return s, nil
}
