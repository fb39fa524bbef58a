package supplier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// offSeason avoids December, January, February and Ramadan so the seasonal
// multiplier stays at 1.0.
var offSeason = time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

func TestChargeableWeight(t *testing.T) {
	// 0.01 m3 bills as 1.67 kg, heavier than the actual 1 kg
	assert.InDelta(t, 1.67, ChargeableWeight(1, 0.01), 0.001)
	// dense cargo bills by actual weight
	assert.InDelta(t, 5.0, ChargeableWeight(5, 0.001), 0.001)
}

func TestEstimateShippingIntraJakarta(t *testing.T) {
	// base 25000 + 10kg * 2000/kg, same zone, off season
	cost := EstimateShipping(ZoneJakartaMetro, ZoneJakartaMetro, 1, 0, 10, offSeason)
	assert.Equal(t, "45000", cost.String())
}

func TestEstimateShippingDecemberSurge(t *testing.T) {
	december := time.Date(2026, 12, 15, 0, 0, 0, 0, time.UTC)
	cost := EstimateShipping(ZoneJakartaMetro, ZoneJakartaMetro, 1, 0, 10, december)
	// 45000 * 1.20
	assert.Equal(t, "54000", cost.String())
}

func TestEstimateShippingEasternMultiplier(t *testing.T) {
	// jakarta -> eastern: base 85000, 1.5x distance multiplier
	cost := EstimateShipping(ZoneJakartaMetro, ZoneEastern, 1, 0, 10, offSeason)
	assert.Equal(t, "157500", cost.String())
}

func TestEstimateShippingBulkDiscount(t *testing.T) {
	// 2000 light units: (25000 + 2kg*2000) * 0.9
	cost := EstimateShipping(ZoneJakartaMetro, ZoneJakartaMetro, 0.001, 0, 2000, offSeason)
	assert.Equal(t, "26100", cost.String())
}

func TestEstimateShippingUnknownOriginFallsBackToJava(t *testing.T) {
	cost := EstimateShipping(Zone("nowhere"), ZoneJakartaMetro, 1, 0, 10, offSeason)
	// java -> jakarta base 35000 + 20000, unrecognized zone pair 1.25x
	assert.Equal(t, "68750", cost.String())
}

func TestZoneOf(t *testing.T) {
	assert.Equal(t, ZoneJakartaMetro, ZoneOf("DKI Jakarta", ""))
	assert.Equal(t, ZoneSumatra, ZoneOf("", "Medan"))
	assert.Equal(t, ZoneEastern, ZoneOf("Papua", "whatever"))
	assert.Equal(t, ZoneBaliLombok, ZoneOf("", "Denpasar"))
	assert.Equal(t, ZoneJava, ZoneOf("", ""), "unknown defaults to java")
}

func TestParseZone(t *testing.T) {
	assert.Equal(t, ZoneSulawesi, ParseZone("sulawesi_island"))
	assert.Equal(t, ZoneJakartaMetro, ParseZone(""))
	assert.Equal(t, ZoneJakartaMetro, ParseZone("mars"))
}

func TestIsRamadan(t *testing.T) {
	assert.True(t, IsRamadan(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.True(t, IsRamadan(time.Date(2025, 3, 30, 0, 0, 0, 0, time.UTC)))
	assert.False(t, IsRamadan(offSeason))
	assert.False(t, IsRamadan(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)))
}
