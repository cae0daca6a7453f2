// Package extract turns raw LMS markup into structured records and outbound
// entity links. All functions are pure: they receive page HTML and return
// data, with no network or file system access. The crawler decides where the
// markup comes from (network or cache) and what to do with the results.
package extract
