package sim

import (
	"fmt"
	"math"
	"sort"
	"time"

	"marketsim/logger"
	"marketsim/models"
)

const (
	// DefaultOpenInterestTarget is the per-expiry total OI the
	// initialization phase normalizes to.
	DefaultOpenInterestTarget = 1.18e11

	// oiBumpOffset positions the initial call/put OI peaks this many
	// points above/below the opening spot.
	oiBumpOffset = 150.0

	// oiBumpStd is the standard deviation of the initial Gaussian bumps.
	oiBumpStd = 100.0

	// oiSideShare is the fraction of the target assigned to each side
	// before the global rescale.
	oiSideShare = 0.4

	// oiFloor is the minimum OI any strike may hold after an ITM shrink.
	oiFloor = 25

	// oiDailyInjectRate is the share of a cohort's current total injected
	// as fresh OI once per trading day.
	oiDailyInjectRate = 0.2

	oiNearDistance   = 150.0
	oiFarDistance    = 200.0
	oiNearExpiryDays = 3
)

// oiInjectWeights spreads daily injection across the selected strikes in
// nearest-to-farthest order. Slots beyond the available strikes are unused.
var oiInjectWeights = []float64{0.5, 0.2, 0.15, 0.1, 0.05}

// reallocationRate maps days-to-expiry to the share of ITM open interest
// moved out per timestamp: 50% on expiry day, 30% one day out, decaying
// linearly to 10% at six days, flat beyond.
func reallocationRate(daysToExpiry int) float64 {
	switch {
	case daysToExpiry <= 0:
		return 0.50
	case daysToExpiry <= 1:
		return 0.30
	case daysToExpiry <= 6:
		return 0.30 - float64(daysToExpiry-1)*0.04
	default:
		return 0.10
	}
}

type contractKey struct {
	strike float64
	side   models.OptionSide
}

// oiCohort is the mutable open-interest state of a single expiry: one OI
// figure per (strike, side) evolving across timestamps, stamped into the
// option records as each timestamp is processed.
type oiCohort struct {
	expiry      time.Time
	expiryDay   time.Time
	state       map[contractKey]int64
	callStrikes []float64 // ascending
	putStrikes  []float64 // ascending
	byTS        map[int64][]int
	firstTS     time.Time
	days        map[int64]struct{}
	skipped     bool
}

func (c *oiCohort) total() int64 {
	var sum int64
	for _, v := range c.state {
		sum += v
	}
	return sum
}

// oiEngine owns the options table for the duration of a run and evolves
// open interest through three phases: initialize, daily injection and
// per-timestamp ITM-to-OTM reallocation.
type oiEngine struct {
	target float64
	log    *logger.Entry
}

func newOIEngine(target float64) *oiEngine {
	if target <= 0 {
		target = DefaultOpenInterestTarget
	}
	return &oiEngine{
		target: target,
		log:    logger.GetLogger().WithComponent("oi_engine"),
	}
}

// Apply mutates the OpenInterest field of every record in place. The index
// series supplies the spot at each timestamp. Cohorts that cannot be
// initialized are skipped with a warning; a cohort total that cannot be
// reconciled to the target aborts the run.
func (e *oiEngine) Apply(bars []models.IndexBar, options []models.OptionRecord) error {
	if len(bars) == 0 || len(options) == 0 {
		return nil
	}

	spotAt := make(map[int64]float64, len(bars))
	dayClose := make(map[int64]float64)
	for _, b := range bars {
		spotAt[b.Timestamp.Unix()] = b.Close
		dayClose[tradingDay(b.Timestamp).Unix()] = b.Close
	}

	cohorts := e.buildCohorts(options)

	for _, c := range cohorts {
		if err := e.initialize(c, bars); err != nil {
			return err
		}
	}

	// Unique trading days and per-day timestamps, chronological. Each
	// day's injection runs strictly before that day's reallocations.
	dayTS := make(map[int64][]int64)
	tsSeen := make(map[int64]struct{})
	for _, rec := range options {
		ts := rec.Timestamp.Unix()
		if _, ok := tsSeen[ts]; ok {
			continue
		}
		tsSeen[ts] = struct{}{}
		day := tradingDay(rec.Timestamp).Unix()
		dayTS[day] = append(dayTS[day], ts)
	}
	days := make([]int64, 0, len(dayTS))
	for day := range dayTS {
		days = append(days, day)
		sort.Slice(dayTS[day], func(i, j int) bool { return dayTS[day][i] < dayTS[day][j] })
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	for _, day := range days {
		daySpot, ok := dayClose[day]
		if !ok {
			continue
		}
		for _, c := range cohorts {
			if c.skipped {
				continue
			}
			if _, ok := c.days[day]; !ok {
				continue
			}
			e.inject(c, daySpot, daysBetween(day, c.expiryDay.Unix()))
		}

		for _, ts := range dayTS[day] {
			spot, ok := spotAt[ts]
			if !ok {
				continue
			}
			for _, c := range cohorts {
				indices, ok := c.byTS[ts]
				if !ok {
					continue
				}
				if !c.skipped {
					e.reallocate(c, options, indices, spot, daysBetween(day, c.expiryDay.Unix()))
				}
				for _, i := range indices {
					key := contractKey{strike: options[i].Strike, side: options[i].Side}
					options[i].OpenInterest = c.state[key]
				}
			}
		}
	}

	return nil
}

func (e *oiEngine) buildCohorts(options []models.OptionRecord) []*oiCohort {
	byExpiry := make(map[int64]*oiCohort)
	for i, rec := range options {
		key := rec.ExpiryDate.Unix()
		c, ok := byExpiry[key]
		if !ok {
			c = &oiCohort{
				expiry:    rec.ExpiryDate,
				expiryDay: tradingDay(rec.ExpiryDate),
				state:     make(map[contractKey]int64),
				byTS:      make(map[int64][]int),
				firstTS:   rec.Timestamp,
				days:      make(map[int64]struct{}),
			}
			byExpiry[key] = c
		}
		ts := rec.Timestamp.Unix()
		c.byTS[ts] = append(c.byTS[ts], i)
		c.days[tradingDay(rec.Timestamp).Unix()] = struct{}{}
		if rec.Timestamp.Before(c.firstTS) {
			c.firstTS = rec.Timestamp
		}
		ck := contractKey{strike: rec.Strike, side: rec.Side}
		if _, ok := c.state[ck]; !ok {
			c.state[ck] = 0
			if rec.Side == models.SideCall {
				c.callStrikes = append(c.callStrikes, rec.Strike)
			} else {
				c.putStrikes = append(c.putStrikes, rec.Strike)
			}
		}
	}

	cohorts := make([]*oiCohort, 0, len(byExpiry))
	for _, c := range byExpiry {
		sort.Float64s(c.callStrikes)
		sort.Float64s(c.putStrikes)
		cohorts = append(cohorts, c)
	}
	sort.Slice(cohorts, func(i, j int) bool { return cohorts[i].expiry.Before(cohorts[j].expiry) })
	return cohorts
}

// initialize lays a Gaussian OI bump per side around the cohort's opening
// spot and rescales the cohort total to the target. Integer truncation per
// strike is corrected by the global rescale; the final total must land
// within truncation error of the target.
func (e *oiEngine) initialize(c *oiCohort, bars []models.IndexBar) error {
	if len(c.callStrikes) == 0 || len(c.putStrikes) == 0 {
		e.log.WithFields(logger.Fields{
			"expiry": c.expiry.Format("2006-01-02"),
			"calls":  len(c.callStrikes),
			"puts":   len(c.putStrikes),
		}).Warn("expiry cohort missing a side, skipping open interest")
		c.skipped = true
		return nil
	}

	spot := bars[0].Close
	for _, b := range bars {
		if b.Timestamp.After(c.firstTS) {
			break
		}
		spot = b.Close
	}

	ceCenter := spot + oiBumpOffset
	peCenter := spot - oiBumpOffset
	for _, k := range c.callStrikes {
		c.state[contractKey{strike: k, side: models.SideCall}] = int64(gaussWeight(k, ceCenter) * e.target * oiSideShare)
	}
	for _, k := range c.putStrikes {
		c.state[contractKey{strike: k, side: models.SidePut}] = int64(gaussWeight(k, peCenter) * e.target * oiSideShare)
	}

	sum := c.total()
	if sum <= 0 {
		e.log.WithFields(logger.Fields{
			"expiry": c.expiry.Format("2006-01-02"),
			"spot":   spot,
		}).Warn("cohort seeded with zero open interest, skipping")
		c.skipped = true
		return nil
	}

	factor := e.target / float64(sum)
	for key, v := range c.state {
		c.state[key] = int64(float64(v) * factor)
	}

	if diff := math.Abs(float64(c.total()) - e.target); diff > float64(len(c.state)+1) {
		return fmt.Errorf("open interest for expiry %s reconciles to %v off target %v",
			c.expiry.Format("2006-01-02"), diff, e.target)
	}
	return nil
}

func gaussWeight(strike, center float64) float64 {
	d := (strike - center) / oiBumpStd
	return math.Exp(-0.5 * d * d)
}

// inject adds 20% of the cohort's current total as fresh OI, split evenly
// between calls and puts and spread across up to five strikes per side
// beyond a days-to-expiry dependent distance from spot. Near-the-money x50
// strikes participate only close to expiry.
func (e *oiEngine) inject(c *oiCohort, spot float64, daysToExpiry int) {
	distance := oiFarDistance
	includeX50 := false
	if daysToExpiry <= oiNearExpiryDays {
		distance = oiNearDistance
		includeX50 = true
	}

	ceTargets := make([]float64, 0, len(oiInjectWeights))
	for _, k := range c.callStrikes { // ascending: nearest above spot first
		if k < spot+distance {
			continue
		}
		if !includeX50 && math.Mod(k, 100) == 50 {
			continue
		}
		ceTargets = append(ceTargets, k)
		if len(ceTargets) == len(oiInjectWeights) {
			break
		}
	}
	peTargets := make([]float64, 0, len(oiInjectWeights))
	for i := len(c.putStrikes) - 1; i >= 0; i-- { // descending: nearest below spot first
		k := c.putStrikes[i]
		if k > spot-distance {
			continue
		}
		if !includeX50 && math.Mod(k, 100) == 50 {
			continue
		}
		peTargets = append(peTargets, k)
		if len(peTargets) == len(oiInjectWeights) {
			break
		}
	}
	if len(ceTargets) == 0 || len(peTargets) == 0 {
		return
	}

	newTotal := int64(float64(c.total()) * oiDailyInjectRate)
	ceAdd := newTotal / 2
	peAdd := newTotal - ceAdd

	for i, k := range ceTargets {
		c.state[contractKey{strike: k, side: models.SideCall}] += int64(float64(ceAdd) * oiInjectWeights[i])
	}
	for i, k := range peTargets {
		c.state[contractKey{strike: k, side: models.SidePut}] += int64(float64(peAdd) * oiInjectWeights[i])
	}
}

// reallocate moves OI out of in-the-money strikes into out-of-the-money
// ones at the days-to-expiry dependent rate, per side, for the strikes
// quoted at this timestamp.
func (e *oiEngine) reallocate(c *oiCohort, options []models.OptionRecord, indices []int, spot float64, daysToExpiry int) {
	rate := reallocationRate(daysToExpiry)

	var calls, puts []float64
	seen := make(map[contractKey]struct{}, len(indices))
	for _, i := range indices {
		key := contractKey{strike: options[i].Strike, side: options[i].Side}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if key.side == models.SideCall {
			calls = append(calls, key.strike)
		} else {
			puts = append(puts, key.strike)
		}
	}
	sort.Float64s(calls)
	sort.Float64s(puts)

	e.shiftSide(c, calls, spot, rate, models.SideCall)
	e.shiftSide(c, puts, spot, rate, models.SidePut)
}

// shiftSide performs one side's ITM-to-OTM move. OTM strikes are weighted
// by inverse linear distance from spot so nearer-the-money strikes absorb
// the bulk; ITM strikes shrink proportionally, never below the floor.
func (e *oiEngine) shiftSide(c *oiCohort, strikes []float64, spot, rate float64, side models.OptionSide) {
	var itm, otm []float64
	for _, k := range strikes {
		inMoney := k <= spot
		if side == models.SidePut {
			inMoney = k >= spot
		}
		if inMoney {
			itm = append(itm, k)
		} else {
			otm = append(otm, k)
		}
	}
	if len(itm) == 0 || len(otm) == 0 {
		return
	}

	var itmTotal int64
	for _, k := range itm {
		itmTotal += c.state[contractKey{strike: k, side: side}]
	}
	move := int64(float64(itmTotal) * rate)
	if move <= 0 {
		return
	}

	weights := make([]float64, len(otm))
	weightSum := 0.0
	for i, k := range otm {
		dist := k - spot
		if side == models.SidePut {
			dist = spot - k
		}
		weights[i] = 1 / (1 + 0.01*dist)
		weightSum += weights[i]
	}

	shrink := 1 - float64(move)/float64(itmTotal)
	for _, k := range itm {
		key := contractKey{strike: k, side: side}
		v := int64(float64(c.state[key]) * shrink)
		if v < oiFloor {
			v = oiFloor
		}
		c.state[key] = v
	}
	for i, k := range otm {
		key := contractKey{strike: k, side: side}
		c.state[key] += int64(float64(move) * weights[i] / weightSum)
	}
}

func daysBetween(day, expiryDay int64) int {
	return int((expiryDay - day) / (24 * 60 * 60))
}
