package source

import (
	"strings"
	"testing"
)

func TestShopHierarchyQueryWalksAllLevels(t *testing.T) {
	for _, want := range []string{
		"FROM shop s",
		"JOIN city c ON s.cityid = c.cityid",
		"JOIN region r ON c.regionid = r.regionid",
		"JOIN country co ON r.countryid = co.countryid",
	} {
		if !strings.Contains(shopHierarchySQL, want) {
			t.Errorf("shop hierarchy query missing %q", want)
		}
	}
}

func TestProductHierarchyQueryWalksAllLevels(t *testing.T) {
	for _, want := range []string{
		"a.price",
		"FROM article a",
		"JOIN productgroup pg ON a.productgroupid = pg.productgroupid",
		"JOIN productfamily pf ON pg.productfamilyid = pf.productfamilyid",
		"JOIN productcategory pc ON pf.productcategoryid = pc.productcategoryid",
	} {
		if !strings.Contains(productHierarchySQL, want) {
			t.Errorf("product hierarchy query missing %q", want)
		}
	}
}
