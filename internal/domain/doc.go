// Package domain models USGS earthquake feed data and the views derived from it.
//
// # Data Source
//
// Events originate from the USGS Earthquake Hazards Program GeoJSON summary feeds,
// https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/, which publish rolling
// windows ("all_hour", "all_day", "all_week", "all_month"), and from the FDSN event
// web service, https://earthquake.usgs.gov/fdsnws/event/1/query, which answers
// date-bounded queries in the same GeoJSON shape.
//
// # GeoJSON Conventions
//
// Each feature carries an "id" (network code + event code, e.g. "us7000abcd"),
// which stays stable when the event is revised, so it is used for de-duplication.
//
// Geometry coordinates:
//
//	[longitude, latitude, depth]  →  e.g. [-122.4, 37.8, 10.5]
//	Depth is in kilometres and may be negative for events above the reference
//	surface. Longitude is passed through as published; wrapping it onto
//	[-180, 180] is a rendering concern.
//
// Properties used:
//
//	mag    magnitude, may be null for events not yet reviewed. Null is kept as
//	       "unknown" and never coerced to 0, because 0 is a legitimate magnitude.
//	place  free text such as "10km NE of Example, CA". The trailing comma token
//	       ("CA") is treated as the region for aggregation. May be empty.
//	time   origin time in epoch milliseconds (UTC).
//	url    event page on earthquake.usgs.gov.
//
// A feature without an id, or with fewer than three coordinates, is malformed.
// The whole batch is rejected with a parse error rather than silently dropping
// the feature, see [NormalizeFeatures].
//
// # Ordering
//
// Every record list handed out by this package is sorted newest first and holds
// each id at most once. The FDSN query returns ascending order and is re-sorted.
//
// # Aggregation
//
// Magnitude buckets are 1-unit wide from 0 to 7 plus an open "7+" bucket. Depth
// bands use the absolute depth:
//
//	<15 km very shallow | 15–30 shallow | 30–70 moderate | 70–150 intermediate | 150+ deep
//
// Trend series resolution depends on the window: 12×5 min for an hour, 24×1 h for
// a day, 7×1 d for a week, 30×1 d for a month and one bucket per calendar day for
// a custom range.
package domain
