package maps

import "html/template"

const headHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>
  html, body, #map { height: 100%; margin: 0; }
  .control-box { background: white; padding: 8px 12px; border-radius: 4px; box-shadow: 0 1px 4px rgba(0,0,0,.4); }
</style>
</head>
<body>
<div id="map"></div>
<script>
var map = L.map('map').setView([{{.CenterLat}}, {{.CenterLon}}], 11);
L.tileLayer('https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png', {
  attribution: '&copy; OpenStreetMap contributors'
}).addTo(map);
`

const footHTML = `</script>
</body>
</html>
`

var yearlyTemplate = template.Must(template.New("yearly").Parse(headHTML + `
var boundaries = {{.Boundaries}};
var crimes = {{.Crimes}};

var boundaryLayer = L.geoJSON(boundaries, {
  style: function (f) {
    return { color: f.properties.color, weight: 1, fillOpacity: 0.15 };
  },
  onEachFeature: function (f, layer) {
    layer.bindPopup(f.properties.school_nm + ' (' + f.properties.grade_cat + ')');
  }
}).addTo(map);

var crimeLayer = L.geoJSON(crimes, {
  pointToLayer: function (f, latlng) {
    return L.circleMarker(latlng, { radius: 3, color: '#333', fillOpacity: 0.7 });
  },
  onEachFeature: function (f, layer) {
    layer.bindPopup(f.properties.primary_type + '<br>' + f.properties.location_description);
  }
}).addTo(map);

L.control.layers(null, {
  'School boundaries': boundaryLayer,
  'Crimes': crimeLayer
}).addTo(map);
` + footHTML))

var sliderTemplate = template.Must(template.New("slider").Parse(headHTML + `
var boundaries = {{.Boundaries}};
var crimes = {{.Crimes}};
var years = {{.Years}};

var boundaryLayer = L.geoJSON(null, {
  style: function (f) {
    return { color: f.properties.color, weight: 1, fillOpacity: 0.15 };
  },
  onEachFeature: function (f, layer) {
    layer.bindPopup(f.properties.school_nm + ' (' + f.properties.grade_cat + ')');
  }
}).addTo(map);

var crimeLayer = L.geoJSON(null, {
  pointToLayer: function (f, latlng) {
    return L.circleMarker(latlng, { radius: 3, color: '#333', fillOpacity: 0.7 });
  },
  onEachFeature: function (f, layer) {
    layer.bindPopup(f.properties.primary_type);
  }
}).addTo(map);

function showYear(start) {
  boundaryLayer.clearLayers();
  boundaries.features.forEach(function (f) {
    if (f.properties.year_start === start) boundaryLayer.addData(f);
  });
  crimeLayer.clearLayers();
  crimes.features.forEach(function (f) {
    if (f.properties.year === start + 1) crimeLayer.addData(f);
  });
  document.getElementById('year-label').textContent = 'SY ' + start + '-' + (start + 1);
}

var slider = L.control({ position: 'topright' });
slider.onAdd = function () {
  var div = L.DomUtil.create('div', 'control-box');
  div.innerHTML = '<b id="year-label"></b><br>' +
    '<input id="year-slider" type="range" min="0" max="' + (years.length - 1) + '" value="0" step="1">';
  L.DomEvent.disableClickPropagation(div);
  return div;
};
slider.addTo(map);

document.getElementById('year-slider').addEventListener('input', function (e) {
  showYear(years[parseInt(e.target.value, 10)]);
});
if (years.length > 0) showYear(years[0]);
` + footHTML))

var transferTemplate = template.Must(template.New("transfer").Parse(headHTML + `
var patches = {{.Patches}};

var patchLayer = L.geoJSON(patches, {
  style: { color: '#ff7f0e', weight: 1, fillOpacity: 0.5 },
  onEachFeature: function (f, layer) {
    var sqkm = (f.properties.area_sqm / 1e6).toFixed(3);
    layer.bindTooltip(f.properties.closed_school_nm + ' &rarr; ' +
      f.properties.receiving_school_nm + '<br>' + sqkm + ' km&sup2;');
  }
}).addTo(map);

if (patches.features.length > 0) {
  map.fitBounds(patchLayer.getBounds());
}
` + footHTML))
