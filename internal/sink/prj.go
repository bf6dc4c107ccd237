package sink

import (
	"fmt"
	"strconv"

	"github.com/sells-group/geojoin/internal/feature"
)

const (
	wgs84WKT = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],` +
		`PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`
	etrs89WKT = `GEOGCS["ETRS89",DATUM["European_Terrestrial_Reference_System_1989",SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],AUTHORITY["EPSG","6258"]],` +
		`PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4258"]]`
)

// prjWKT returns the WKT1 .prj body for crs. Only WGS 84, its UTM zones and
// the Polish CS92 and CS2000 grids are known; other codes report false.
func prjWKT(crs string) (string, bool) {
	code, ok := feature.SRID(crs)
	if !ok {
		return "", false
	}
	switch {
	case code == 4326:
		return wgs84WKT, true
	case code == 2180:
		return transverseMercator(code, "ETRS89 / Poland CS92", etrs89WKT, 19, 0.9993, 500000, -5300000), true
	case code >= 2176 && code <= 2179:
		zone := code - 2171
		name := "ETRS89 / Poland CS2000 zone " + strconv.Itoa(zone)
		return transverseMercator(code, name, etrs89WKT, float64(3*zone), 0.999923, float64(zone)*1e6+500000, 0), true
	case code >= 32601 && code <= 32660:
		zone := code - 32600
		return transverseMercator(code, fmt.Sprintf("WGS 84 / UTM zone %dN", zone), wgs84WKT, float64(6*zone-183), 0.9996, 500000, 0), true
	case code >= 32701 && code <= 32760:
		zone := code - 32700
		return transverseMercator(code, fmt.Sprintf("WGS 84 / UTM zone %dS", zone), wgs84WKT, float64(6*zone-183), 0.9996, 500000, 10000000), true
	}
	return "", false
}

func transverseMercator(code int, name, geogcs string, centralMeridian, scale, falseEasting, falseNorthing float64) string {
	num := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return fmt.Sprintf(`PROJCS[%q,%s,PROJECTION["Transverse_Mercator"],`+
		`PARAMETER["latitude_of_origin",0],PARAMETER["central_meridian",%s],PARAMETER["scale_factor",%s],`+
		`PARAMETER["false_easting",%s],PARAMETER["false_northing",%s],`+
		`UNIT["metre",1,AUTHORITY["EPSG","9001"]],AUTHORITY["EPSG","%d"]]`,
		name, geogcs, num(centralMeridian), num(scale), num(falseEasting), num(falseNorthing), code)
}
