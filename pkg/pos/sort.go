package pos

import (
	"sort"
)

// SortSeries orders points by (store_id, item_id, day) in place
func SortSeries(points []DailySeriesPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		return lessPoint(points[i].StoreID, points[i].ItemID, points[i].Day.Unix(),
			points[j].StoreID, points[j].ItemID, points[j].Day.Unix())
	})
}

// SortAlerts orders alerts by (store_id, item_id, day) in place, keeping the
// relative order of alerts that share a point
func SortAlerts(alerts []Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		return lessPoint(alerts[i].StoreID, alerts[i].ItemID, alerts[i].Day.Unix(),
			alerts[j].StoreID, alerts[j].ItemID, alerts[j].Day.Unix())
	})
}

// GroupSeries splits a series into per (store, item) slices ordered by day.
// The returned keys are sorted.
func GroupSeries(points []DailySeriesPoint) ([]SeriesKey, map[SeriesKey][]DailySeriesPoint) {
	sorted := make([]DailySeriesPoint, len(points))
	copy(sorted, points)
	SortSeries(sorted)

	keys := make([]SeriesKey, 0)
	groups := make(map[SeriesKey][]DailySeriesPoint)

	for _, p := range sorted {
		key := p.SeriesKey()
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}

		groups[key] = append(groups[key], p)
	}

	return keys, groups
}

func lessPoint(storeA, itemA string, dayA int64, storeB, itemB string, dayB int64) bool {
	if storeA != storeB {
		return storeA < storeB
	}

	if itemA != itemB {
		return itemA < itemB
	}

	return dayA < dayB
}
