// Package gps reads NMEA from a serial GNSS receiver and hands out fixed-point
// positions.
//
// RMC supplies position and validity, GGA supplies fix quality, satellite
// count and HDOP. A position is only handed to the guidance loop while the
// fix pin reports a lock.
package gps
