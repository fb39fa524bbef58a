package supplier

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Zone is a shipping zone of the Indonesian archipelago.
type Zone string

const (
	ZoneJakartaMetro Zone = "jakarta_metro"
	ZoneJava         Zone = "java_island"
	ZoneSumatra      Zone = "sumatra_island"
	ZoneKalimantan   Zone = "kalimantan_island"
	ZoneSulawesi     Zone = "sulawesi_island"
	ZoneEastern      Zone = "eastern_islands"
	ZoneBaliLombok   Zone = "bali_lombok"
)

// baseRates is the inter-zone base shipping rate in IDR.
var baseRates = map[Zone]map[Zone]int64{
	ZoneJakartaMetro: {
		ZoneJakartaMetro: 25000, ZoneJava: 35000, ZoneSumatra: 45000,
		ZoneKalimantan: 55000, ZoneSulawesi: 65000, ZoneEastern: 85000, ZoneBaliLombok: 50000,
	},
	ZoneJava: {
		ZoneJakartaMetro: 35000, ZoneJava: 30000, ZoneSumatra: 50000,
		ZoneKalimantan: 60000, ZoneSulawesi: 70000, ZoneEastern: 90000, ZoneBaliLombok: 45000,
	},
	ZoneSumatra: {
		ZoneJakartaMetro: 45000, ZoneJava: 50000, ZoneSumatra: 35000,
		ZoneKalimantan: 70000, ZoneSulawesi: 80000, ZoneEastern: 100000, ZoneBaliLombok: 65000,
	},
	ZoneKalimantan: {
		ZoneJakartaMetro: 55000, ZoneJava: 60000, ZoneSumatra: 70000,
		ZoneKalimantan: 40000, ZoneSulawesi: 60000, ZoneEastern: 90000, ZoneBaliLombok: 70000,
	},
	ZoneSulawesi: {
		ZoneJakartaMetro: 65000, ZoneJava: 70000, ZoneSumatra: 80000,
		ZoneKalimantan: 60000, ZoneSulawesi: 45000, ZoneEastern: 70000, ZoneBaliLombok: 75000,
	},
	ZoneEastern: {
		ZoneJakartaMetro: 85000, ZoneJava: 90000, ZoneSumatra: 100000,
		ZoneKalimantan: 90000, ZoneSulawesi: 70000, ZoneEastern: 60000, ZoneBaliLombok: 80000,
	},
	ZoneBaliLombok: {
		ZoneJakartaMetro: 50000, ZoneJava: 45000, ZoneSumatra: 65000,
		ZoneKalimantan: 70000, ZoneSulawesi: 75000, ZoneEastern: 80000, ZoneBaliLombok: 30000,
	},
}

// provinceZones maps lowercased Indonesian province names to zones.
var provinceZones = map[string]Zone{
	"dki jakarta": ZoneJakartaMetro, "jakarta": ZoneJakartaMetro, "banten": ZoneJakartaMetro,
	"jawa barat": ZoneJava, "jawa tengah": ZoneJava, "jawa timur": ZoneJava,
	"di yogyakarta": ZoneJava, "yogyakarta": ZoneJava,
	"aceh": ZoneSumatra, "sumatera utara": ZoneSumatra, "sumatera barat": ZoneSumatra,
	"sumatera selatan": ZoneSumatra, "riau": ZoneSumatra, "kepulauan riau": ZoneSumatra,
	"jambi": ZoneSumatra, "bengkulu": ZoneSumatra, "lampung": ZoneSumatra,
	"bangka belitung": ZoneSumatra,
	"kalimantan barat": ZoneKalimantan, "kalimantan tengah": ZoneKalimantan,
	"kalimantan selatan": ZoneKalimantan, "kalimantan timur": ZoneKalimantan,
	"kalimantan utara": ZoneKalimantan,
	"sulawesi utara": ZoneSulawesi, "sulawesi tengah": ZoneSulawesi,
	"sulawesi selatan": ZoneSulawesi, "sulawesi tenggara": ZoneSulawesi,
	"sulawesi barat": ZoneSulawesi, "gorontalo": ZoneSulawesi,
	"maluku": ZoneEastern, "maluku utara": ZoneEastern, "papua": ZoneEastern,
	"papua barat": ZoneEastern, "nusa tenggara timur": ZoneEastern,
	"bali": ZoneBaliLombok, "nusa tenggara barat": ZoneBaliLombok,
}

var cityZones = map[string]Zone{
	"jakarta": ZoneJakartaMetro, "bekasi": ZoneJakartaMetro, "depok": ZoneJakartaMetro,
	"tangerang": ZoneJakartaMetro, "bogor": ZoneJakartaMetro,
	"bandung": ZoneJava, "semarang": ZoneJava, "surabaya": ZoneJava, "malang": ZoneJava,
	"medan": ZoneSumatra, "palembang": ZoneSumatra, "pekanbaru": ZoneSumatra,
	"pontianak": ZoneKalimantan, "balikpapan": ZoneKalimantan, "banjarmasin": ZoneKalimantan,
	"makassar": ZoneSulawesi, "manado": ZoneSulawesi,
	"jayapura": ZoneEastern, "ambon": ZoneEastern, "kupang": ZoneEastern,
	"denpasar": ZoneBaliLombok, "mataram": ZoneBaliLombok,
}

// ZoneOf infers the shipping zone from province and city. Unknown locations
// default to java_island, the most common origin.
func ZoneOf(province, city string) Zone {
	if z, ok := provinceZones[strings.ToLower(strings.TrimSpace(province))]; ok {
		return z
	}
	if z, ok := cityZones[strings.ToLower(strings.TrimSpace(city))]; ok {
		return z
	}
	return ZoneJava
}

// ParseZone returns the Zone for a config string, defaulting to
// jakarta_metro.
func ParseZone(s string) Zone {
	switch Zone(s) {
	case ZoneJakartaMetro, ZoneJava, ZoneSumatra, ZoneKalimantan,
		ZoneSulawesi, ZoneEastern, ZoneBaliLombok:
		return Zone(s)
	}
	return ZoneJakartaMetro
}

// Volumetric conversion factor: one cubic meter bills as 167 kg.
const volumetricFactor = 167.0

// per-kg surcharge on chargeable weight, IDR.
const perKgRate = 2000

// minimum billable shipping cost, IDR.
const minShippingIDR = 20000

// ChargeableWeight is the greater of actual and volumetric weight.
func ChargeableWeight(actualKg, volumeM3 float64) float64 {
	volumetric := volumeM3 * volumetricFactor
	if volumetric > actualKg {
		return volumetric
	}
	return actualKg
}

// EstimateShipping prices one shipment from the supplier zone to the
// destination. Base rate and weight surcharge are summed, scaled by the
// distance multiplier and the seasonal adjustment, floored at the minimum
// and discounted 10% for bulk quantities over 1000 units.
func EstimateShipping(from, to Zone, weightKg, volumeM3 float64, quantity int64, at time.Time) decimal.Decimal {
	base := baseRates[from][to]
	if base == 0 {
		base = baseRates[ZoneJava][to]
	}

	weight := ChargeableWeight(weightKg*float64(quantity), volumeM3*float64(quantity))
	cost := decimal.NewFromInt(base).
		Add(decimal.NewFromFloat(weight).Mul(decimal.NewFromInt(perKgRate)))

	cost = cost.Mul(distanceMultiplier(from, to))
	cost = cost.Mul(seasonalAdjustment(at))

	if quantity > 1000 {
		cost = cost.Mul(decimal.NewFromFloat(0.9))
	}
	if cost.LessThan(decimal.NewFromInt(minShippingIDR)) {
		cost = decimal.NewFromInt(minShippingIDR)
	}
	return cost.Round(0)
}

// distanceMultiplier scales cost by how far apart the zones are.
func distanceMultiplier(from, to Zone) decimal.Decimal {
	if from == to {
		return decimal.NewFromInt(1)
	}
	western := map[Zone]bool{ZoneJakartaMetro: true, ZoneJava: true, ZoneBaliLombok: true}
	if western[from] && western[to] {
		return decimal.NewFromFloat(1.1)
	}
	if from == ZoneEastern || to == ZoneEastern {
		return decimal.NewFromFloat(1.5)
	}
	return decimal.NewFromFloat(1.25)
}

// seasonalAdjustment raises rates in peak shipping seasons: year-end holiday
// surge, Ramadan logistics crunch, Chinese New Year.
func seasonalAdjustment(at time.Time) decimal.Decimal {
	month := at.Month()
	switch {
	case month == time.December || month == time.January:
		return decimal.NewFromFloat(1.20)
	case IsRamadan(at):
		return decimal.NewFromFloat(1.15)
	case month == time.February:
		return decimal.NewFromFloat(1.10) // Chinese New Year window
	}
	return decimal.NewFromInt(1)
}

// ramadanRanges approximates Ramadan by Gregorian date range; the Hijri
// calendar shifts roughly 11 days earlier each year.
var ramadanRanges = []struct{ start, end string }{
	{"2024-03-11", "2024-04-09"},
	{"2025-03-01", "2025-03-30"},
	{"2026-02-18", "2026-03-19"},
	{"2027-02-08", "2027-03-09"},
	{"2028-01-28", "2028-02-26"},
}

// IsRamadan reports whether the instant falls within Ramadan.
func IsRamadan(at time.Time) bool {
	day := at.UTC().Format("2006-01-02")
	for _, r := range ramadanRanges {
		if day >= r.start && day <= r.end {
			return true
		}
	}
	return false
}
