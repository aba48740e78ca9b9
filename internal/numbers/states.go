package numbers

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
)

// stateAreaCodes maps US states to their dialing area codes. Used to buy
// one local-presence number per state.
var stateAreaCodes = map[string][]string{
	"Alabama":        {"205", "251", "256", "334"},
	"Alaska":         {"907"},
	"Arizona":        {"480", "520", "602", "623", "928"},
	"Arkansas":       {"479", "501", "870"},
	"California":     {"209", "213", "310", "323", "408", "415", "424", "510", "530", "559", "562", "619", "626", "650", "657", "661", "707", "714", "725", "747", "805", "818", "831", "858", "909", "916", "925", "949", "951"},
	"Colorado":       {"303", "719", "720", "970"},
	"Connecticut":    {"203", "860"},
	"Delaware":       {"302"},
	"Florida":        {"305", "321", "352", "386", "407", "561", "727", "754", "772", "786", "813", "850", "904", "941", "954"},
	"Georgia":        {"229", "404", "470", "478", "678", "706", "762", "770", "912"},
	"Hawaii":         {"808"},
	"Idaho":          {"208", "986"},
	"Illinois":       {"217", "224", "309", "312", "331", "618", "630", "708", "773", "779", "815", "847", "872"},
	"Indiana":        {"219", "260", "317", "463", "574", "765", "812", "930"},
	"Iowa":           {"319", "515", "563", "641", "712"},
	"Kansas":         {"316", "620", "785", "913"},
	"Kentucky":       {"270", "364", "502", "606", "859"},
	"Louisiana":      {"225", "318", "337", "504", "985"},
	"Maine":          {"207"},
	"Maryland":       {"240", "301", "410", "443", "667"},
	"Massachusetts":  {"339", "351", "413", "508", "617", "774", "781", "857"},
	"Michigan":       {"231", "248", "269", "313", "517", "586", "616", "734", "810", "906", "947", "989"},
	"Minnesota":      {"218", "320", "507", "612", "651", "763", "952"},
	"Mississippi":    {"228", "601", "662", "769"},
	"Missouri":       {"314", "417", "573", "636", "660", "816"},
	"Montana":        {"406"},
	"Nebraska":       {"308", "402", "531"},
	"Nevada":         {"702", "725", "775"},
	"New Hampshire":  {"603"},
	"New Jersey":     {"201", "551", "609", "732", "848", "856", "862", "908", "973"},
	"New Mexico":     {"505", "575"},
	"New York":       {"212", "315", "332", "347", "516", "518", "585", "607", "631", "646", "680", "718", "838", "845", "914", "917", "929", "934"},
	"North Carolina": {"252", "336", "704", "743", "828", "910", "919", "980", "984"},
	"North Dakota":   {"701"},
	"Ohio":           {"216", "220", "234", "283", "330", "380", "419", "440", "513", "567", "614", "740", "937"},
	"Oklahoma":       {"405", "539", "572", "580", "918"},
	"Oregon":         {"458", "503", "541", "971"},
	"Pennsylvania":   {"215", "223", "267", "272", "412", "445", "484", "570", "610", "717", "724", "814", "878"},
	"Rhode Island":   {"401"},
	"South Carolina": {"803", "843", "854", "864"},
	"South Dakota":   {"605"},
	"Tennessee":      {"423", "615", "629", "731", "865", "901", "931"},
	"Texas":          {"210", "214", "254", "281", "325", "346", "361", "409", "430", "432", "469", "512", "682", "713", "726", "737", "806", "817", "830", "832", "903", "915", "936", "940", "956", "972", "979"},
	"Utah":           {"385", "435", "801"},
	"Vermont":        {"802"},
	"Virginia":       {"276", "434", "540", "571", "703", "757", "804"},
	"Washington":     {"206", "253", "360", "425", "509"},
	"West Virginia":  {"304", "681"},
	"Wisconsin":      {"262", "274", "414", "534", "608", "715", "920"},
	"Wyoming":        {"307"},
}

// stateNames holds the registry keys in stable sorted order so handlers
// return deterministic listings.
var stateNames = func() []string {
	names := make([]string, 0, len(stateAreaCodes))
	for name := range stateAreaCodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}()

// StateInfo pairs a state with its area codes.
type StateInfo struct {
	Name      string   `json:"name"`
	AreaCodes []string `json:"areaCodes"`
}

// AllStates lists every state in the registry, alphabetically.
func AllStates() []StateInfo {
	out := make([]StateInfo, 0, len(stateNames))
	for _, name := range stateNames {
		out = append(out, StateInfo{Name: name, AreaCodes: stateAreaCodes[name]})
	}
	return out
}

// StateAreaCodes returns the area codes for one state, nil if unknown.
func StateAreaCodes(state string) []string {
	return stateAreaCodes[state]
}

// StateSearchResult is one available number found for a state.
type StateSearchResult struct {
	State    string          `json:"state"`
	AreaCode string          `json:"areaCode"`
	Number   AvailableNumber `json:"number"`
}

// SearchNumberForState finds one purchasable number in a state, trying its
// area codes in random order so inventory spreads across codes.
func (s *Service) SearchNumberForState(ctx context.Context, state string) (StateSearchResult, error) {
	codes := StateAreaCodes(state)
	if len(codes) == 0 {
		return StateSearchResult{}, fmt.Errorf("%w: no area codes for state %q", ErrUnknownState, state)
	}

	shuffled := make([]string, len(codes))
	copy(shuffled, codes)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	for _, code := range shuffled {
		found, err := s.provider.SearchAvailable(ctx, code, 1)
		if err != nil {
			s.log.Debug("state search: area code unavailable", "state", state, "area_code", code, "err", err)
			continue
		}
		if len(found) > 0 {
			return StateSearchResult{State: state, AreaCode: code, Number: found[0]}, nil
		}
	}
	return StateSearchResult{}, fmt.Errorf("%w: no available numbers for %q in any area code", ErrNoInventory, state)
}

// StateSearchOutcome partitions a multi-state search into hits and misses.
type StateSearchOutcome struct {
	Success []StateSearchResult `json:"success"`
	Failed  []StateSearchError  `json:"failed"`
}

type StateSearchError struct {
	State string `json:"state"`
	Error string `json:"error"`
}

// SearchNumbersForStates runs SearchNumberForState sequentially for each
// state, collecting per-state failures instead of aborting.
func (s *Service) SearchNumbersForStates(ctx context.Context, states []string) (StateSearchOutcome, error) {
	out := StateSearchOutcome{Success: []StateSearchResult{}, Failed: []StateSearchError{}}
	for _, state := range states {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := s.SearchNumberForState(ctx, state)
		if err != nil {
			out.Failed = append(out.Failed, StateSearchError{State: state, Error: err.Error()})
			continue
		}
		out.Success = append(out.Success, res)
	}
	return out, nil
}
