package location

// DefaultCities are the built-in city shortcuts for the Sri Lanka region.
// Operators can replace them wholesale via Config.Cities.
func DefaultCities() map[string]Coordinate {
	return map[string]Coordinate{
		"colombo": {Lat: 6.9271, Lng: 79.8612},
		"kandy":   {Lat: 7.8731, Lng: 80.7718},
		"galle":   {Lat: 6.0535, Lng: 80.2210},
		"jaffna":  {Lat: 9.6615, Lng: 80.0255},
		"negombo": {Lat: 7.2008, Lng: 79.8737},
		"matara":  {Lat: 5.9549, Lng: 80.5550},
	}
}
