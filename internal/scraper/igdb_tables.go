package scraper

// IGDB release date regions.
var igdbRegions = map[int]string{
	1: "eu",
	2: "us",
	3: "au",
	4: "nz",
	5: "jp",
	6: "cn",
	7: "asi",
	8: "wor",
}

// IGDB age rating enum to ages code. 6 is "rating pending" and maps to
// nothing.
var igdbAgeRatings = map[int]string{
	1:  "3",
	2:  "7",
	3:  "12",
	4:  "16",
	5:  "18",
	7:  "EC",
	8:  "E",
	9:  "E10",
	10: "T",
	11: "M",
	12: "AO",
}

// igdbSinglePlayer is the only game mode that implies one player.
const igdbSinglePlayer = 1

// playersFromModes derives a players descriptor from IGDB game modes.
func playersFromModes(modeIDs []int) string {
	for _, id := range modeIDs {
		if id != igdbSinglePlayer {
			return "2"
		}
	}
	return "1"
}
